package dto

import "errors"

var (
	// ErrMalformedMessage 表示消息体无法解析或缺少必需字段
	ErrMalformedMessage = errors.New("dto: malformed message")
	// ErrUnknownCommand 表示服务端收到了未定义的客户端指令
	ErrUnknownCommand = errors.New("dto: unknown command")
)
