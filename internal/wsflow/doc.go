// Package wsflow carries AMFlow over WebSocket.
//
// By default every frame is one JSON text message. The client sends Request
// frames; the server answers each request that has a non-zero ID with a
// Response, and pushes ticks and events as they are delivered to the
// connection's hub session:
//
//	client → server  {"id":1,"method":"open","params":{"play_id":"42"}}
//	server → client  {"res":{"id":1}}
//	server → client  {"push":{"kind":"tick","tick":{"frame":0}}}
//
// A client that negotiates the "amflow.msgpack" subprotocol receives pushes
// as binary frames instead: one kind byte (1 tick, 2 event) followed by the
// playlog MessagePack encoding.
//
// SendTick and SendEvent are sent with ID 0 and get no response. The client
// runs the same state, permission and argument checks as the hub first;
// anything the server still rejects is logged there.
package wsflow
