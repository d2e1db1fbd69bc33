package logging

const (
	FieldService = "service"

	// HTTP
	FieldRequestID = "request_id"
	FieldMethod    = "method"
	FieldPath      = "path"
	FieldStatus    = "status"
	FieldLatency   = "latency_ms"
	FieldClientIP  = "client_ip"

	// Rooms
	FieldRoomID  = "room_id"
	FieldConnID  = "conn_id"
	FieldEvent   = "event"
	FieldName    = "display_name"
	FieldFile    = "filename"
	FieldRemoved = "removed"
)
