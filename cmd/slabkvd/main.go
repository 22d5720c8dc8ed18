// Command slabkvd serves a slab allocator key/value store over TCP.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/tuannm99/slabkv/internal/config"
	"github.com/tuannm99/slabkv/internal/slab"
	"github.com/tuannm99/slabkv/server/slabkvwire"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "slabkv.yaml", "path to slabkvd yaml config")
	flag.Parse()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	addr := os.Getenv("SLABKV_ADDR")
	if addr == "" {
		addr = cfg.Server.Addr
	}
	if addr == "" {
		addr = "127.0.0.1:8866"
	}

	sc := slabkvwire.ServerConfig{
		Addr:   addr,
		SysCtx: slab.SysContext{PageSize: cfg.Store.PageSize},
	}

	if err := slabkvwire.Run(sc); err != nil {
		log.Fatalf("server error: %v", err)
	}
	fmt.Println("slabkvd: shut down")
}
