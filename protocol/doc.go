// Package protocol implements the subset of RESP2 spoken by the key-value
// server: a streaming Reader that parses RESP arrays and inline commands,
// and a buffered Writer for replies.
//
// Basic usage:
//
//	reader := protocol.NewReader(conn)
//	writer := protocol.NewWriter(conn)
//	for {
//		cmd, err := reader.ReadCommand()
//		if err != nil {
//			break
//		}
//		// dispatch cmd.Name with cmd.Args
//		writer.WriteOK()
//		writer.Flush()
//	}
package protocol
