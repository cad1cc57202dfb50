// ABOUTME: Proximity audio wire protocol package
// ABOUTME: Defines protocol messages, the binary data frame and a WebSocket client
// Package protocol implements the proxaudio wire protocol.
//
// Control messages are JSON text frames wrapped in a {type, payload}
// envelope. Stream data travels as binary frames:
//
//	[0x01][sequence:8 BE][id_len:1][stream_id][samples]
//
// Example:
//
//	client := protocol.NewClient(protocol.Config{ServerAddr: "localhost:8930", EntityID: "npc-7"})
//	if err := client.Connect(ctx); err != nil {
//	    return err
//	}
//	for ev := range client.Streams {
//	    switch ev.Kind {
//	    case protocol.EventStart:
//	        ...
//	    }
//	}
package protocol
