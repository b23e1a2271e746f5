package control

import "net"

// Dial connects to a Control API Unix socket at path, for use by
// reference CLI clients and tests. The connection carries exactly one
// request/reply exchange per spec §4.9's "one request per connection"
// convention.
func Dial(path string) (net.Conn, error) {
	return net.Dial("unix", path)
}

// Call sends a single request and returns its decoded reply over a
// fresh connection to the socket at path.
func Call(path string, op Opcode, req any) (Reply, error) {
	conn, err := Dial(path)
	if err != nil {
		return Reply{}, err
	}
	defer conn.Close()

	if err := WriteRequest(conn, op, req); err != nil {
		return Reply{}, err
	}
	return ReadReply(conn)
}
