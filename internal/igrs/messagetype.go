package igrs

// MessageType identifies an IGRS message by its 01-IGRSMessageType value.
type MessageType int

// Message types in protocol order.
const (
	MessageUnknown MessageType = iota
	DeviceOnlineAdvertisement
	DeviceOfflineAdvertisement
	CreatePipeRequest
	CreatePipeResponse
	AuthenticateRequest
	AuthenticateResponse
	AuthenticateResultRequest
	AuthenticateResultResponse
	CreatePipeResultRequest
	CreatePipeResultResponse
	DetachPipeNotify
	DeviceOnlineDetectionRequest
	DeviceOnlineDetectionResponse
	GetDeviceDescriptionRequest
	GetDeviceDescriptionResponse
	PeerDeviceGroupAdvertisement
	QuitPeerDeviceGroupNotify
	CentralisedDeviceGroupAdvertisement
	JoinCentralisedDeviceGroupRequest
	JoinCentralisedDeviceGroupResponse
	QuitCentralisedDeviceGroupAdvertisement
	QuitCentralisedDeviceGroupNotify
	SearchDeviceRequest
	SearchDeviceResponse
	SearchDeviceRequestOnDevice
	SearchDeviceResponseOnDevice
	SubscribeDeviceEventRequest
	RenewSubscriptionDeviceEventRequest
	SubscribeDeviceEventResponse
	UnSubscribeDeviceEventNotify
	NotifyDeviceEvent
	SearchDeviceGroupRequest
	SearchDeviceGroupResponse
	ServiceOnlineAdvertisement
	ServiceOfflineAdvertisement
	RegisterServiceNotify
	UnRegisterServiceNotify
	SearchServiceRequest
	SearchServiceResponse
	SearchServiceRequestOnDevice
	SearchServiceResponseOnDevice
	SubscribeServiceEventRequest
	RenewSubscriptionServiceEventRequest
	SubscribeServiceEventResponse
	UnSubscribeServiceEventNotify
	NotifyServiceEvent
	GetServiceDescriptionRequest
	GetServiceDescriptionResponse
	CreateSessionRequest
	CreateSessionResponse
	DestroySessionNotify
	ApplySessionKeyRequest
	ApplySessionKeyResponse
	TransferSessionKeyRequest
	TransferSessionKeyResponse
	InvokeServiceRequest
	InvokeServiceResponse
	SendNotification
)

var messageTypeNames = [...]string{
	MessageUnknown:                          "",
	DeviceOnlineAdvertisement:               "DeviceOnlineAdvertisement",
	DeviceOfflineAdvertisement:              "DeviceOfflineAdvertisement",
	CreatePipeRequest:                       "CreatePipeRequest",
	CreatePipeResponse:                      "CreatePipeResponse",
	AuthenticateRequest:                     "AuthenticateRequest",
	AuthenticateResponse:                    "AuthenticateResponse",
	AuthenticateResultRequest:               "AuthenticateResultRequest",
	AuthenticateResultResponse:              "AuthenticateResultResponse",
	CreatePipeResultRequest:                 "CreatePipeResultRequest",
	CreatePipeResultResponse:                "CreatePipeResultResponse",
	DetachPipeNotify:                        "DetachPipeNotify",
	DeviceOnlineDetectionRequest:            "DeviceOnlineDetectionRequest",
	DeviceOnlineDetectionResponse:           "DeviceOnlineDetectionResponse",
	GetDeviceDescriptionRequest:             "GetDeviceDescriptionRequest",
	GetDeviceDescriptionResponse:            "GetDeviceDescriptionResponse",
	PeerDeviceGroupAdvertisement:            "PeerDeviceGroupAdvertisement",
	QuitPeerDeviceGroupNotify:               "QuitPeerDeviceGroupNotify",
	CentralisedDeviceGroupAdvertisement:     "CentralisedDeviceGroupAdvertisement",
	JoinCentralisedDeviceGroupRequest:       "JoinCentralisedDeviceGroupRequest",
	JoinCentralisedDeviceGroupResponse:      "JoinCentralisedDeviceGroupResponse",
	QuitCentralisedDeviceGroupAdvertisement: "QuitCentralisedDeviceGroupAdvertisement",
	QuitCentralisedDeviceGroupNotify:        "QuitCentralisedDeviceGroupNotify",
	SearchDeviceRequest:                     "SearchDeviceRequest",
	SearchDeviceResponse:                    "SearchDeviceResponse",
	SearchDeviceRequestOnDevice:             "SearchDeviceRequestOnDevice",
	SearchDeviceResponseOnDevice:            "SearchDeviceResponseOnDevice",
	SubscribeDeviceEventRequest:             "SubscribeDeviceEventRequest",
	RenewSubscriptionDeviceEventRequest:     "RenewSubscriptionDeviceEventRequest",
	SubscribeDeviceEventResponse:            "SubscribeDeviceEventResponse",
	UnSubscribeDeviceEventNotify:            "UnSubscribeDeviceEventNotify",
	NotifyDeviceEvent:                       "NotifyDeviceEvent",
	SearchDeviceGroupRequest:                "SearchDeviceGroupRequest",
	SearchDeviceGroupResponse:               "SearchDeviceGroupResponse",
	ServiceOnlineAdvertisement:              "ServiceOnlineAdvertisement",
	ServiceOfflineAdvertisement:             "ServiceOfflineAdvertisement",
	RegisterServiceNotify:                   "RegisterServiceNotify",
	UnRegisterServiceNotify:                 "UnRegisterServiceNotify",
	SearchServiceRequest:                    "SearchServiceRequest",
	SearchServiceResponse:                   "SearchServiceResponse",
	SearchServiceRequestOnDevice:            "SearchServiceRequestOnDevice",
	SearchServiceResponseOnDevice:           "SearchServiceResponseOnDevice",
	SubscribeServiceEventRequest:            "SubscribeServiceEventRequest",
	RenewSubscriptionServiceEventRequest:    "RenewSubscriptionServiceEventRequest",
	SubscribeServiceEventResponse:           "SubscribeServiceEventResponse",
	UnSubscribeServiceEventNotify:           "UnSubscribeServiceEventNotify",
	NotifyServiceEvent:                      "NotifyServiceEvent",
	GetServiceDescriptionRequest:            "GetServiceDescriptionRequest",
	GetServiceDescriptionResponse:           "GetServiceDescriptionResponse",
	CreateSessionRequest:                    "CreateSessionRequest",
	CreateSessionResponse:                   "CreateSessionResponse",
	DestroySessionNotify:                    "DestroySessionNotify",
	ApplySessionKeyRequest:                  "ApplySessionKeyRequest",
	ApplySessionKeyResponse:                 "ApplySessionKeyResponse",
	TransferSessionKeyRequest:               "TransferSessionKeyRequest",
	TransferSessionKeyResponse:              "TransferSessionKeyResponse",
	InvokeServiceRequest:                    "InvokeServiceRequest",
	InvokeServiceResponse:                   "InvokeServiceResponse",
	SendNotification:                        "SendNotification",
}

// String returns the header spelling of t, "" for MessageUnknown.
func (t MessageType) String() string {
	if t < 0 || int(t) >= len(messageTypeNames) {
		return ""
	}
	return messageTypeNames[t]
}

// ParseMessageType returns the type named by s, or MessageUnknown.
// Matching is case-sensitive.
func ParseMessageType(s string) MessageType {
	if s == "" {
		return MessageUnknown
	}
	for i := 1; i < len(messageTypeNames); i++ {
		if messageTypeNames[i] == s {
			return MessageType(i)
		}
	}
	return MessageUnknown
}
