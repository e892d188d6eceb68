// Command fixtureprobe is a small in-repo stand-in for the real sslsniff
// and process probe binaries: it emits the same newline-delimited JSON
// protocol on stdout, so the rest of the pipeline can be exercised
// end-to-end in tests without a real eBPF probe or root privileges.
//
// Usage: fixtureprobe --source ssl|process [--lines N] [--delay-ms N]
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"
)

type fixtureEvent struct {
	Timestamp int64       `json:"timestamp"`
	Pid       uint32      `json:"pid"`
	Comm      string      `json:"comm"`
	Data      interface{} `json:"data"`
}

func main() {
	source := flag.String("source", "ssl", "ssl or process")
	lines := flag.Int("lines", 3, "number of events to emit")
	delayMs := flag.Int("delay-ms", 0, "delay between events in milliseconds")
	pid := flag.Int("pid", 4242, "pid to stamp on emitted events")
	flag.Parse()

	enc := json.NewEncoder(os.Stdout)
	for i := 0; i < *lines; i++ {
		ev := fixtureEvent{
			Timestamp: time.Now().UnixMilli(),
			Pid:       uint32(*pid),
			Comm:      "fixtureprobe",
		}
		switch *source {
		case "process":
			ev.Data = map[string]interface{}{
				"event":    "FILE_OPEN",
				"filepath": "/etc/hosts",
				"flags":    0,
			}
		default:
			ev.Data = map[string]interface{}{
				"function": "WRITE/SEND",
				"len":      5,
				"data":     "hello",
			}
		}
		if err := enc.Encode(ev); err != nil {
			fmt.Fprintln(os.Stderr, "fixtureprobe: encode:", err)
			os.Exit(1)
		}
		if *delayMs > 0 {
			time.Sleep(time.Duration(*delayMs) * time.Millisecond)
		}
	}
}
