package dispatch

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/cabin-dispatch/internal/instruction"
)

var navigationRoutes = routeTable{
	instruction.Navigation: {
		instruction.Start:  {msgType: "nav", content: "start", toast: "开始导航"},
		instruction.Stop:   {msgType: "nav", content: "stop", toast: "停止导航"},
		instruction.TurnOn: {msgType: "nav", content: "nav_to", field: "place", toast: "开始导航，目的地为：", appendDescription: true},
	},
}

var mediaRoutes = routeTable{
	instruction.MediaPlayer: {
		instruction.Start:    {msgType: "player", content: "start", toast: "开始播放音乐"},
		instruction.Stop:     {msgType: "player", content: "stop", toast: "停止播放音乐"},
		instruction.Increase: {msgType: "player", content: "increase", toast: "音量增大"},
		instruction.Decrease: {msgType: "player", content: "decrease", toast: "音量减小"},
		instruction.Previous: {msgType: "player", content: "previous", toast: "上一首"},
		instruction.Next:     {msgType: "player", content: "next", toast: "下一首"},
	},
}

var phoneRoutes = routeTable{
	instruction.Phone: {
		instruction.Start:   {msgType: "phone", content: "start", toast: "接听电话"},
		instruction.Stop:    {msgType: "phone", content: "end", toast: "拒接电话"},
		instruction.TurnOn:  {msgType: "phone", content: "make", field: "contacts", toast: "拨打电话：", appendDescription: true},
		instruction.TurnOff: {msgType: "phone", content: "hang_up", toast: "挂断电话"},
	},
	instruction.TextMessage: {
		instruction.Start: {msgType: "sms", content: "send", field: "text", toast: "发送短信：", appendDescription: true},
	},
}

// NewNavigationHandler routes NAVIGATION instructions to the map page
func NewNavigationHandler(deps Deps) *RouteHandler {
	return newRouteHandler("navigation", "Start, stop and set destinations on the navigation page", navigationRoutes, deps)
}

// NewMediaHandler routes MEDIA_PLAYER instructions to the player page
func NewMediaHandler(deps Deps) *RouteHandler {
	return newRouteHandler("media", "Playback and volume control on the music player page", mediaRoutes, deps)
}

// NewPhoneHandler routes PHONE and TEXT_MESSAGE instructions to the phone page
func NewPhoneHandler(deps Deps) *RouteHandler {
	return newRouteHandler("phone", "Answer, reject, dial and hang up calls; send text messages", phoneRoutes, deps)
}

// SettingHandler receives every target without a dedicated handler. It only
// logs; vehicle settings are applied outside this service.
type SettingHandler struct {
	log logrus.FieldLogger
}

// NewSettingHandler creates the fallback handler
func NewSettingHandler(log logrus.FieldLogger) *SettingHandler {
	return &SettingHandler{log: log}
}

// Handle logs the setting change
func (h *SettingHandler) Handle(ctx context.Context, req Request) Outcome {
	fields := logrus.Fields{
		"handler": "setting",
		"action":  req.Action,
		"target":  req.Target,
		"source":  req.Source,
	}
	if req.Description != nil {
		fields["description"] = *req.Description
	}
	logger := h.log.WithFields(fields)

	if !req.Action.Known() || !req.Target.Known() {
		logger.Info("Unknown action or target, ignoring")
		return OutcomeIgnored
	}
	logger.Infof("Setting operation: %s%s", req.Action.Label(), req.Target.Label())
	return OutcomeSetting
}

// GetName returns the handler name
func (h *SettingHandler) GetName() string {
	return "setting"
}

// GetDescription returns the handler description
func (h *SettingHandler) GetDescription() string {
	return "Fallback for vehicle settings without a dedicated page"
}

// Targets returns nil; the setting handler is only used as fallback
func (h *SettingHandler) Targets() []instruction.OperandTarget {
	return nil
}
