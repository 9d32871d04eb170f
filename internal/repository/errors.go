package repository

import "errors"

// 通用的存储库错误
var (
	// ErrCorruptState 表示存储中的数据无法解析为网格
	ErrCorruptState = errors.New("repository: corrupt grid state")
	// ErrInvalidChannel 表示频道码为空
	ErrInvalidChannel = errors.New("repository: channel code must not be empty")
)
