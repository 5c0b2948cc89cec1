package featureflag

type Flag string

const (
	FlagDisableNodePool      Flag = "DISABLE_NODE_POOL"
	FlagDisableFrameDispatch Flag = "DISABLE_FRAME_DISPATCH"
	FlagDisableWebsocket     Flag = "DISABLE_WEBSOCKET"
)
