package http

import (
	"net/http"

	"collaborative-grid/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// ChannelHandler 提供频道的只读查询接口
type ChannelHandler struct {
	channelService *service.ChannelService
}

// NewChannelHandler 创建 ChannelHandler 实例
func NewChannelHandler(channelService *service.ChannelService) *ChannelHandler {
	if channelService == nil {
		panic("ChannelService cannot be nil for ChannelHandler")
	}
	return &ChannelHandler{channelService: channelService}
}

// ListChannelsResponse 定义频道列表的响应结构体
type ListChannelsResponse struct {
	Channels []string `json:"channels"`
}

// ListChannels 返回所有活跃频道的频道码
func (h *ChannelHandler) ListChannels(c *gin.Context) {
	SuccessResponse(c, http.StatusOK, ListChannelsResponse{Channels: h.channelService.Codes()})
}

// GetChannel 返回单个频道的用户列表和网格概况
func (h *ChannelHandler) GetChannel(c *gin.Context) {
	code := c.Param("code")
	info, err := h.channelService.Channel(code)
	if err != nil {
		logrus.WithField("channel_code", code).WithError(err).Debug("Handler.GetChannel: lookup failed")
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, info)
}
