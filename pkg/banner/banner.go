package banner

import (
	"fmt"

	"servlite/pkg/config"
)

const banner = `
███████╗███████╗██████╗ ██╗   ██╗██╗     ██╗████████╗███████╗
██╔════╝██╔════╝██╔══██╗██║   ██║██║     ██║╚══██╔══╝██╔════╝
███████╗█████╗  ██████╔╝██║   ██║██║     ██║   ██║   █████╗
╚════██║██╔══╝  ██╔══██╗╚██╗ ██╔╝██║     ██║   ██║   ██╔══╝
███████║███████╗██║  ██║ ╚████╔╝ ███████╗██║   ██║   ███████╗
╚══════╝╚══════╝╚═╝  ╚═╝  ╚═══╝  ╚══════╝╚═╝   ╚═╝   ╚══════╝
`

// Print writes the startup banner with the effective runtime info.
func Print(cfg *config.Config, version string) {
	fmt.Print(banner)
	fmt.Println("== Config =====================================================")
	fmt.Printf("HTTP:      %s\n", cfg.Addr())
	fmt.Printf("WebSocket: %s\n", cfg.WSAddr())
	if cfg.Ops.Addr != "" {
		fmt.Printf("Ops:       %s (metrics, docs, health)\n", cfg.Ops.Addr)
	}
	fmt.Printf("Store:     %s\n", cfg.Storage.DBName)
	if version != "" {
		fmt.Printf("Version:   %s\n", version)
	}
	if cfg.Debug {
		fmt.Println("Debug:     on")
	}
	fmt.Println("\n== Examples ===================================================")
	fmt.Printf("curl 'http://%s/'\n", cfg.Addr())
	fmt.Printf("curl -X PUT 'http://%s/v1/kv/greeting' -d 'hello'\n", cfg.Addr())
	fmt.Printf("curl 'http://%s/v1/kv/greeting'\n", cfg.Addr())
	fmt.Printf("websocat 'ws://%s/'\n", cfg.WSAddr())
	fmt.Println("\n== Logs =======================================================")
}
