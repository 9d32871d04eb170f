package domain

// User 表示频道中的一个用户。用户名在频道内唯一，颜色由服务端分配。
type User struct {
	Username string `json:"username"`
	Color    string `json:"color"`
}

// Session 保存会话级别的信息。
type Session struct {
	Users         []User // 顺序与服务端下发一致
	ChannelCode   string // 服务端分配前为空
	LocalUsername string // join 时设置
}

// Clone 返回 Session 的深拷贝。
func (s Session) Clone() Session {
	out := s
	if s.Users != nil {
		out.Users = make([]User, len(s.Users))
		copy(out.Users, s.Users)
	}
	return out
}

// LocalUser 在用户列表中查找本地用户。
func (s Session) LocalUser() (User, bool) {
	for _, u := range s.Users {
		if u.Username == s.LocalUsername {
			return u, true
		}
	}
	return User{}, false
}
