// bgpdecode dumps one or more hex-encoded BGP messages to stdout, one
// message per argument or stdin line. It exists for the same reason the
// teacher's debug-raw tool does: a quick way to see what a wire codec made
// of a captured message without wiring up a full session.
package main

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"github.com/route-beacon/bgp-control/internal/bgpproto"
)

func main() {
	if len(os.Args) > 1 {
		for i, arg := range os.Args[1:] {
			decodeOne(i, arg)
		}
		return
	}

	scanner := bufio.NewScanner(os.Stdin)
	n := 0
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		decodeOne(n, line)
		n++
	}
}

func decodeOne(n int, hexStr string) {
	hexStr = strings.ReplaceAll(hexStr, " ", "")
	buf, err := hex.DecodeString(hexStr)
	if err != nil {
		fmt.Printf("=== message %d: bad hex: %v ===\n", n, err)
		return
	}

	fmt.Printf("=== message %d (%d bytes) ===\n", n, len(buf))
	msg, err := bgpproto.Decode(buf)
	if err != nil {
		if de, ok := err.(*bgpproto.DecodeError); ok {
			fmt.Printf("  decode error: %s code=%d subcode=%d offset=%d size=%d\n",
				de.TypeName, de.Code, de.Subcode, de.DataOffset, de.DataSize)
		} else {
			fmt.Printf("  decode error: %v\n", err)
		}
		return
	}

	dump(msg)
	fmt.Println()
}

func dump(msg bgpproto.Message) {
	switch m := msg.(type) {
	case *bgpproto.OpenMessage:
		fmt.Printf("  OPEN version=%d as=%d hold_time=%d identifier=%s\n", m.Version, m.AS, m.HoldTime, m.Identifier)
		for _, c := range m.Capabilities {
			fmt.Printf("    capability code=%d value=%s\n", c.Code, hex.EncodeToString(c.Value))
		}

	case *bgpproto.UpdateMessage:
		fmt.Printf("  UPDATE withdrawn=%d nlri=%d attributes=%d\n",
			len(m.WithdrawnRoutes), len(m.NLRI), len(m.Attributes))
		for _, p := range m.WithdrawnRoutes {
			fmt.Printf("    withdraw %s\n", p.String())
		}
		for _, a := range m.Attributes {
			fmt.Printf("    attr flags=0x%02x code=%d len=%d value=%s\n",
				a.Flags, a.Code, len(a.Value), hex.EncodeToString(a.Value))
		}
		for _, p := range m.NLRI {
			fmt.Printf("    nlri %s\n", p.String())
		}

	case *bgpproto.NotificationMessage:
		fmt.Printf("  NOTIFICATION code=%d subcode=%d data=%s\n", m.Code, m.Subcode, hex.EncodeToString(m.Data))

	case bgpproto.KeepaliveMessage:
		fmt.Println("  KEEPALIVE")

	default:
		fmt.Printf("  unknown message type %d\n", msg.MsgType())
	}
}
