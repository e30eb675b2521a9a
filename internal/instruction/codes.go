package instruction

// OpcodeAction names the verb selected by the first two digits of a code
type OpcodeAction string

// OperandTarget names the vehicle subsystem selected by the second two digits
type OperandTarget string

// Unknown is returned for any opcode or operand missing from the tables
const Unknown = "UNKNOWN"

const (
	ActionUnknown OpcodeAction = Unknown

	TurnOn          OpcodeAction = "TURN_ON"
	TurnOff         OpcodeAction = "TURN_OFF"
	SetValue        OpcodeAction = "SET_VALUE"
	Start           OpcodeAction = "START"
	Stop            OpcodeAction = "STOP"
	Increase        OpcodeAction = "INCREASE"
	Decrease        OpcodeAction = "DECREASE"
	Toggle          OpcodeAction = "TOGGLE"
	Query           OpcodeAction = "QUERY"
	Adjust          OpcodeAction = "ADJUST"
	Activate        OpcodeAction = "ACTIVATE"
	Deactivate      OpcodeAction = "DEACTIVATE"
	Schedule        OpcodeAction = "SCHEDULE"
	CancelSchedule  OpcodeAction = "CANCEL_SCHEDULE"
	Locate          OpcodeAction = "LOCATE"
	Connect         OpcodeAction = "CONNECT"
	Disconnect      OpcodeAction = "DISCONNECT"
	Sync            OpcodeAction = "SYNC"
	Reset           OpcodeAction = "RESET"
	ModeChange      OpcodeAction = "MODE_CHANGE"
	CustomSetting   OpcodeAction = "CUSTOM_SETTING"
	SaveSetting     OpcodeAction = "SAVE_SETTING"
	LoadSetting     OpcodeAction = "LOAD_SETTING"
	Emergency       OpcodeAction = "EMERGENCY"
	StatusUpdate    OpcodeAction = "STATUS_UPDATE"
	Calculate       OpcodeAction = "CALCULATE"
	Previous        OpcodeAction = "PREVIOUS"
	Next            OpcodeAction = "NEXT"
	Confirm         OpcodeAction = "CONFIRM"
	Reject          OpcodeAction = "REJECT"
	CancelEmergency OpcodeAction = "CANCEL_EMERGENCY"
)

// Opcodes with fixed meaning for the emergency state machine
const (
	OpEmergency       = 23
	OpConfirm         = 28
	OpReject          = 29
	OpCancelEmergency = 30
)

const (
	TargetUnknown OperandTarget = Unknown

	AC                    OperandTarget = "AC"
	Navigation            OperandTarget = "NAVIGATION"
	MediaPlayer           OperandTarget = "MEDIA_PLAYER"
	WindowDriver          OperandTarget = "WINDOW_DRIVER"
	WindowPassenger       OperandTarget = "WINDOW_PASSENGER"
	WindowRearLeft        OperandTarget = "WINDOW_REAR_LEFT"
	WindowRearRight       OperandTarget = "WINDOW_REAR_RIGHT"
	Sunroof               OperandTarget = "SUNROOF"
	SeatHeaterDriver      OperandTarget = "SEAT_HEATER_DRIVER"
	SeatHeaterPassenger   OperandTarget = "SEAT_HEATER_PASSENGER"
	SteeringWheelHeater   OperandTarget = "STEERING_WHEEL_HEATER"
	Headlight             OperandTarget = "HEADLIGHT"
	FogLight              OperandTarget = "FOG_LIGHT"
	InteriorLight         OperandTarget = "INTERIOR_LIGHT"
	DoorLock              OperandTarget = "DOOR_LOCK"
	Trunk                 OperandTarget = "TRUNK"
	Engine                OperandTarget = "ENGINE"
	Wipers                OperandTarget = "WIPERS"
	RearWiper             OperandTarget = "REAR_WIPER"
	SideMirrorLeft        OperandTarget = "SIDE_MIRROR_LEFT"
	SideMirrorRight       OperandTarget = "SIDE_MIRROR_RIGHT"
	RearviewMirror        OperandTarget = "REARVIEW_MIRROR"
	ParkingBrake          OperandTarget = "PARKING_BRAKE"
	CruiseControl         OperandTarget = "CRUISE_CONTROL"
	LaneAssist            OperandTarget = "LANE_ASSIST"
	CollisionAvoidance    OperandTarget = "COLLISION_AVOIDANCE"
	Bluetooth             OperandTarget = "BLUETOOTH"
	WiFi                  OperandTarget = "WIFI"
	Phone                 OperandTarget = "PHONE"
	TextMessage           OperandTarget = "TEXT_MESSAGE"
	Battery               OperandTarget = "BATTERY"
	Charging              OperandTarget = "CHARGING"
	TirePressure          OperandTarget = "TIRE_PRESSURE"
	OilLevel              OperandTarget = "OIL_LEVEL"
	FuelLevel             OperandTarget = "FUEL_LEVEL"
	AirSuspension         OperandTarget = "AIR_SUSPENSION"
	DrivingMode           OperandTarget = "DRIVING_MODE"
	EcoMode               OperandTarget = "ECO_MODE"
	SportMode             OperandTarget = "SPORT_MODE"
	ComfortMode           OperandTarget = "COMFORT_MODE"
	AirQuality            OperandTarget = "AIR_QUALITY"
	AmbientLighting       OperandTarget = "AMBIENT_LIGHTING"
	SeatPositionDriver    OperandTarget = "SEAT_POSITION_DRIVER"
	SeatPositionPassenger OperandTarget = "SEAT_POSITION_PASSENGER"
	MassageDriver         OperandTarget = "MASSAGE_DRIVER"
	MassagePassenger      OperandTarget = "MASSAGE_PASSENGER"
	VoiceAssistant        OperandTarget = "VOICE_ASSISTANT"
	CameraSystem          OperandTarget = "CAMERA_SYSTEM"
	ParkingAssist         OperandTarget = "PARKING_ASSIST"
	TrafficInfo           OperandTarget = "TRAFFIC_INFO"
)

// entry pairs a table value with its cabin display label
type entry[T ~string] struct {
	Name  T
	Label string
}

// opcodeTable is indexed by opcode value
var opcodeTable = [...]entry[OpcodeAction]{
	{TurnOn, "打开"},
	{TurnOff, "关闭"},
	{SetValue, "设置"},
	{Start, "启动"},
	{Stop, "停止"},
	{Increase, "增加"},
	{Decrease, "减少"},
	{Toggle, "切换"},
	{Query, "查询"},
	{Adjust, "调整"},
	{Activate, "激活"},
	{Deactivate, "停用"},
	{Schedule, "预约"},
	{CancelSchedule, "取消预约"},
	{Locate, "定位"},
	{Connect, "连接"},
	{Disconnect, "断开连接"},
	{Sync, "同步"},
	{Reset, "重置"},
	{ModeChange, "改变模式"},
	{CustomSetting, "自定义设置"},
	{SaveSetting, "保存设置"},
	{LoadSetting, "加载设置"},
	{Emergency, "紧急操作"},
	{StatusUpdate, "状态更新"},
	{Calculate, "计算"},
	{Previous, "上一首"},
	{Next, "下一首"},
	{Confirm, "确认"},
	{Reject, "拒绝"},
	{CancelEmergency, "取消紧急操作"},
}

// operandTable is indexed by operand value minus one; operand 0 is unmapped
var operandTable = [...]entry[OperandTarget]{
	{AC, "空调"},
	{Navigation, "导航系统"},
	{MediaPlayer, "媒体播放器"},
	{WindowDriver, "驾驶员车窗"},
	{WindowPassenger, "乘客车窗"},
	{WindowRearLeft, "左后车窗"},
	{WindowRearRight, "右后车窗"},
	{Sunroof, "天窗"},
	{SeatHeaterDriver, "驾驶员座椅加热"},
	{SeatHeaterPassenger, "乘客座椅加热"},
	{SteeringWheelHeater, "方向盘加热"},
	{Headlight, "大灯"},
	{FogLight, "雾灯"},
	{InteriorLight, "车内灯"},
	{DoorLock, "车门锁"},
	{Trunk, "后备箱"},
	{Engine, "发动机"},
	{Wipers, "雨刷"},
	{RearWiper, "后雨刷"},
	{SideMirrorLeft, "左侧后视镜"},
	{SideMirrorRight, "右侧后视镜"},
	{RearviewMirror, "车内后视镜"},
	{ParkingBrake, "驻车制动"},
	{CruiseControl, "巡航控制"},
	{LaneAssist, "车道辅助"},
	{CollisionAvoidance, "碰撞避免系统"},
	{Bluetooth, "蓝牙"},
	{WiFi, "无线网络"},
	{Phone, "电话"},
	{TextMessage, "短信"},
	{Battery, "电池"},
	{Charging, "充电系统"},
	{TirePressure, "胎压"},
	{OilLevel, "机油液位"},
	{FuelLevel, "燃油液位"},
	{AirSuspension, "空气悬挂"},
	{DrivingMode, "驾驶模式"},
	{EcoMode, "经济模式"},
	{SportMode, "运动模式"},
	{ComfortMode, "舒适模式"},
	{AirQuality, "空气质量"},
	{AmbientLighting, "氛围灯光"},
	{SeatPositionDriver, "驾驶员座椅位置"},
	{SeatPositionPassenger, "乘客座椅位置"},
	{MassageDriver, "驾驶员座椅按摩"},
	{MassagePassenger, "乘客座椅按摩"},
	{VoiceAssistant, "语音助手"},
	{CameraSystem, "摄像头系统"},
	{ParkingAssist, "泊车辅助"},
	{TrafficInfo, "交通信息"},
}

var (
	actionLabels = make(map[OpcodeAction]string, len(opcodeTable))
	targetLabels = make(map[OperandTarget]string, len(operandTable))
)

func init() {
	for _, e := range opcodeTable {
		actionLabels[e.Name] = e.Label
	}
	for _, e := range operandTable {
		targetLabels[e.Name] = e.Label
	}
}

// ActionFor returns the action for an opcode, or ActionUnknown
func ActionFor(opcode int) OpcodeAction {
	if opcode < 0 || opcode >= len(opcodeTable) {
		return ActionUnknown
	}
	return opcodeTable[opcode].Name
}

// TargetFor returns the target for an operand, or TargetUnknown
func TargetFor(operand int) OperandTarget {
	if operand < 1 || operand > len(operandTable) {
		return TargetUnknown
	}
	return operandTable[operand-1].Name
}

// Label returns the display label of the action, or "" when unknown
func (a OpcodeAction) Label() string {
	return actionLabels[a]
}

// Label returns the display label of the target, or "" when unknown
func (t OperandTarget) Label() string {
	return targetLabels[t]
}

// Known reports whether the action came from the opcode table
func (a OpcodeAction) Known() bool {
	_, ok := actionLabels[a]
	return ok
}

// Known reports whether the target came from the operand table
func (t OperandTarget) Known() bool {
	_, ok := targetLabels[t]
	return ok
}

// TableEntry is one row of a code table as exposed to API clients
type TableEntry struct {
	Code  int    `json:"code"`
	Name  string `json:"name"`
	Label string `json:"label"`
}

// Actions lists the opcode table in code order
func Actions() []TableEntry {
	out := make([]TableEntry, 0, len(opcodeTable))
	for i, e := range opcodeTable {
		out = append(out, TableEntry{Code: i, Name: string(e.Name), Label: e.Label})
	}
	return out
}

// Targets lists the operand table in code order
func Targets() []TableEntry {
	out := make([]TableEntry, 0, len(operandTable))
	for i, e := range operandTable {
		out = append(out, TableEntry{Code: i + 1, Name: string(e.Name), Label: e.Label})
	}
	return out
}
