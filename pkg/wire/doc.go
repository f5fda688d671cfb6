// Package wire implements the gateway's binary frame codec.
//
// Outbound notifications are written in the enhanced format by default:
//
//	[1: kind=1][4: identifier][4: expiry][2: token len][token][2: payload len][payload]
//
// The legacy simple format omits identifier and expiry. Inbound error
// responses are fixed six-byte frames:
//
//	[1: command=8][1: status][4: identifier]
//
// All integers are big-endian.
package wire
