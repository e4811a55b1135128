package jobs

import (
	"fmt"
	"time"

	"github.com/nats-io/nats-server/v2/server"
)

// StartEmbedded runs a single-node NATS server with JetStream enabled,
// storing streams under storeDir. A port of -1 picks a free port.
func StartEmbedded(storeDir string, port int) (*server.Server, error) {
	ns, err := server.NewServer(&server.Options{
		ServerName: "foospulse-embedded",
		Host:       "127.0.0.1",
		Port:       port,
		JetStream:  true,
		StoreDir:   storeDir,
		NoLog:      true,
		NoSigs:     true,
	})
	if err != nil {
		return nil, fmt.Errorf("creating embedded nats: %w", err)
	}

	go ns.Start()
	if !ns.ReadyForConnections(10 * time.Second) {
		ns.Shutdown()
		return nil, fmt.Errorf("embedded nats not ready")
	}
	return ns, nil
}
