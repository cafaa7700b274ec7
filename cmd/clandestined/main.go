// Command clandestined runs the IRC daemon: it loads a TOML
// configuration file, wires the server registry, command dispatcher,
// and access policy together, and accepts client and peer-server
// connections.
package main

import (
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"time"

	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/paigeadele/clandestine/internal/access"
	"github.com/paigeadele/clandestine/internal/config"
	"github.com/paigeadele/clandestine/internal/dispatch"
	"github.com/paigeadele/clandestine/internal/ircmsg"
	"github.com/paigeadele/clandestine/internal/metrics"
	"github.com/paigeadele/clandestine/internal/peer"
	"github.com/paigeadele/clandestine/internal/registry"
	"github.com/paigeadele/clandestine/internal/session"
	"github.com/paigeadele/clandestine/store/sqlite"
)

// Args are command line arguments.
type Args struct {
	ConfigFile  string
	ServerName  string
	SID         string
	MetricsAddr string
}

func getArgs() *Args {
	configFile := flag.String("conf", "", "Configuration file.")
	serverName := flag.String("server-name", "", "Server name. Overrides server.name from config.")
	sid := flag.String("sid", "", "SID. Overrides server.sid from config.")
	metricsAddr := flag.String("metrics-addr", "", "Address to serve Prometheus metrics on (optional).")

	flag.Parse()

	if *configFile == "" {
		printUsage(fmt.Errorf("you must provide a configuration file"))
		return nil
	}

	return &Args{ConfigFile: *configFile, ServerName: *serverName, SID: *sid, MetricsAddr: *metricsAddr}
}

func printUsage(err error) {
	_, _ = fmt.Fprintf(os.Stderr, "%s\n", err)
	_, _ = fmt.Fprintf(os.Stderr, "Usage: %s <arguments>\n", os.Args[0])
	flag.PrintDefaults()
}

func main() {
	log.SetFlags(0)

	args := getArgs()
	if args == nil {
		os.Exit(1)
	}

	cfg, err := config.Load(args.ConfigFile)
	if err != nil {
		log.Fatalf("loading configuration: %s", err)
	}

	serverName := cfg.Server.Name
	if args.ServerName != "" {
		serverName = args.ServerName
	}
	sid := cfg.Server.SID
	if args.SID != "" {
		sid = args.SID
	}

	pol := access.NewPolicy()
	cfg.LoadPolicy(pol)

	if cfg.Database.Path != "" {
		db, err := sqlite.Open(cfg.Database.Path)
		if err != nil {
			log.Fatalf("opening line store: %s", err)
		}
		for _, kind := range []access.Kind{access.KindK, access.KindD, access.KindG, access.KindI, access.KindO, access.KindU} {
			store := sqlite.ForKind(db, kind)
			lines, err := store.Load()
			if err != nil {
				log.Fatalf("loading access lines: %s", err)
			}
			if len(lines) > 0 {
				pol.Load(kind, lines)
			}
		}
	}

	m := metrics.New()
	m.MustRegister(prometheus.DefaultRegisterer)

	reg := registry.New(
		registry.ServerInfo{
			Name:        serverName,
			Description: cfg.Server.Description,
			SID:         sid,
			CreatedDate: cfg.Server.CreatedDate,
			Version:     cfg.Server.Version,
			Network:     cfg.Server.Network,
		},
		registry.Limits{
			MaxClients:         cfg.Limits.MaxClients,
			MaxChannels:        cfg.Limits.MaxChannels,
			MaxChannelsPerUser: cfg.Limits.MaxChannelsPerUser,
		},
		pol,
		access.BcryptOperAuth(pol),
		m,
	)

	d := dispatch.New(reg, cfg.MOTD, cfg.Server.Network)

	if args.MetricsAddr != "" {
		go func() {
			http.Handle("/metrics", promhttp.Handler())
			log.Printf("serving metrics on %s", args.MetricsAddr)
			log.Println(http.ListenAndServe(args.MetricsAddr, nil))
		}()
	}

	if cfg.Server.PeerAddr != "" {
		go listenPeers(cfg.Server.PeerAddr, reg, cfg.Links)
	}

	if err := listenClients(cfg.Server.ListenAddr, reg, d, cfg); err != nil {
		log.Fatal(err)
	}
}

func listenClients(addr string, reg *registry.Registry, d *dispatch.Dispatcher, cfg *config.Config) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("unable to listen on %s: %w", addr, err)
	}
	log.Printf("listening for clients on %s", addr)

	for {
		conn, err := ln.Accept()
		if err != nil {
			log.Printf("accept error: %s", err)
			continue
		}

		id := reg.NextSessionID()
		host, _, _ := net.SplitHostPort(conn.RemoteAddr().String())
		if res := reg.CheckAccess(host, host); !res.Allowed {
			_, _ = conn.Write([]byte(fmt.Sprintf("ERROR :Closing link: (%s)\r\n", res.Reason)))
			_ = conn.Close()
			continue
		}

		s := session.New(id, conn, session.Config{
			ServerName:   reg.Info.Name,
			PingInterval: cfg.PingInterval(session.DefaultPingInterval),
			PingTimeout:  cfg.PingTimeout(session.DefaultPingTimeout),
		})
		log.Printf("conn=%s accepted from %s", s.LogID, host)
		s.OnRegistered = d.OnRegistered
		s.OnClose = func(sess *session.Session, reason string) {
			log.Printf("conn=%s closed: %s", sess.LogID, reason)
			d.NoteDeparture(sess)
			reg.RemoveSession(sess, reason)
		}

		reg.AddSession(s)
		go s.Run(d)
	}
}

func listenPeers(addr string, reg *registry.Registry, links []config.PeerLink) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		log.Printf("unable to listen for peers on %s: %s", addr, err)
		return
	}
	log.Printf("listening for peer links on %s", addr)

	for {
		conn, err := ln.Accept()
		if err != nil {
			log.Printf("peer accept error: %s", err)
			continue
		}
		go handlePeer(conn, reg, links)
	}
}

// handlePeer drives one inbound peer link through the TS6 handshake
// (PASS/CAPAB/SERVER), matching the connecting secret against a
// configured link, then sends an empty burst and EOB. Burst/routing
// beyond the handshake is out of scope.
func handlePeer(conn net.Conn, reg *registry.Registry, links []config.PeerLink) {
	p := peer.NewInbound(conn)
	defer func() { _ = conn.Close() }()

	var matchedSecret string
	err := p.ReadLoop(90*time.Second, func(m ircmsg.Message) error {
		switch m.Command {
		case "PASS":
			if len(m.Params) == 0 {
				return fmt.Errorf("malformed PASS")
			}
			for _, l := range links {
				if l.Secret == m.Params[0] {
					matchedSecret = l.Secret
				}
			}
			return p.HandlePASS(m, matchedSecret)

		case "CAPAB":
			return p.HandleCAPAB(m)

		case "SERVER":
			if err := p.HandleSERVER(m); err != nil {
				return err
			}
			if !p.ReadyToBurst() {
				return nil
			}
			if err := p.SendEmptyBurstAndEOB(); err != nil {
				return err
			}
			reg.AddPeer(p)
			return nil
		}
		return nil
	})
	if err != nil {
		log.Printf("peer link %s closed: %s", p.Name, err)
	}
	reg.RemovePeer(p.SID)
}
