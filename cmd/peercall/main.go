package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"

	"peercall/internal/config"
	"peercall/internal/media"
	"peercall/internal/session"
)

func main() {
	configPath := flag.String("config", "", "Path to yaml config file")
	signalingURL := flag.String("signaling", "", "Signaling server WebSocket URL (overrides config)")
	identity := flag.String("id", "", "Proposed identity (auto-generated if empty)")
	callTarget := flag.String("call", "", "Remote identity to call once connected")
	fakeMedia := flag.Bool("fake-media", false, "Use generated media instead of camera and microphone")
	outDir := flag.String("out-dir", "", "Directory for remote track recordings")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "peercall: %v\n", err)
		os.Exit(1)
	}
	if *signalingURL != "" {
		cfg.SignalingURL = *signalingURL
	}
	if *identity != "" {
		cfg.Identity = *identity
	}
	if *fakeMedia {
		cfg.FakeMedia = true
	}
	if *outDir != "" {
		cfg.OutDir = *outDir
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(level).
		With().Timestamp().Logger()

	var opener media.Opener
	if cfg.FakeMedia {
		opener = media.NewSyntheticOpener(cfg.FrameRate)
	} else {
		opener, err = media.NewDeviceOpener(cfg.VideoWidth, cfg.VideoHeight, cfg.FrameRate)
		if err != nil {
			log.Fatal().Err(err).Msg("device capture setup failed")
		}
	}

	var recorder *media.Recorder
	if cfg.OutDir != "" {
		if err := os.MkdirAll(cfg.OutDir, 0o755); err != nil {
			log.Fatal().Err(err).Str("dir", cfg.OutDir).Msg("create output directory")
		}
		recorder = media.NewRecorder(cfg.OutDir, log)
	}

	var s *session.Session
	var dialOnce sync.Once

	events := session.Events{
		OnStatus: func(st session.Status, err error) {
			if err != nil {
				log.Error().Err(err).Str("status", st.String()).
					Str("kind", session.KindOf(err).String()).Msg("status")
				return
			}
			log.Info().Str("status", st.String()).Msg("status")
			if st == session.StatusConnected {
				log.Info().Str("id", s.ID()).Msg("reachable at this identity")
				if *callTarget != "" {
					dialOnce.Do(func() {
						if err := s.StartOutgoing(*callTarget); err != nil {
							log.Error().Err(err).Str("remote", *callTarget).Msg("start call")
						}
					})
				}
			}
		},
		OnIncomingCall: func(remote string) {
			log.Info().Str("remote", remote).Msg("incoming call")
		},
		OnCallStarted: func(remote string, video bool) {
			log.Info().Str("remote", remote).Bool("video", video).Msg("call started")
		},
		OnCallEnded: func(remote string) {
			log.Info().Str("remote", remote).Msg("call ended")
		},
		OnRemoteTrack: func(remote string, track *webrtc.TrackRemote) {
			if recorder == nil {
				return
			}
			if _, err := recorder.Record(track); err != nil {
				log.Warn().Err(err).Str("remote", remote).Msg("record remote track")
			}
		},
		OnRemoteMediaState: func(audio, video bool) {
			log.Info().Bool("audio", audio).Bool("video", video).Msg("remote media state")
		},
	}

	s = session.New(cfg, opener, events, log)
	if err := s.Initialize(); err != nil {
		log.Error().Err(err).Msg("initialize failed, use 'retry' to try again")
	}
	defer s.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	fmt.Println("commands: call <id> | end | mute | video | retry | status | quit")
	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				<-ctx.Done()
				return
			}
			if quit := dispatch(s, log, line); quit {
				return
			}
		}
	}
}

func dispatch(s *session.Session, log zerolog.Logger, line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}
	switch fields[0] {
	case "call":
		if len(fields) != 2 {
			fmt.Println("usage: call <remote-id>")
			return false
		}
		if err := s.StartOutgoing(fields[1]); err != nil {
			log.Error().Err(err).Msg("start call")
		}
	case "end":
		s.EndCall()
	case "mute":
		fmt.Printf("muted: %v\n", s.ToggleMute())
	case "video":
		fmt.Printf("video off: %v\n", s.ToggleVideo())
	case "retry":
		if err := s.Retry(); err != nil {
			log.Error().Err(err).Msg("retry")
		}
	case "status":
		fmt.Printf("status: %s  id: %s  in-call: %s\n", s.Status(), s.ID(), s.ActiveRemote())
	case "quit", "exit":
		return true
	default:
		fmt.Printf("unknown command %q\n", fields[0])
	}
	return false
}
