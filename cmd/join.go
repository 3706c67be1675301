package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/BioHazard786/warpcall/internal/call"
	"github.com/BioHazard786/warpcall/internal/config"
	"github.com/BioHazard786/warpcall/internal/logging"
	"github.com/BioHazard786/warpcall/internal/room"
	"github.com/BioHazard786/warpcall/internal/signaling"
	"github.com/BioHazard786/warpcall/internal/ui"
	"github.com/BioHazard786/warpcall/internal/webrtc"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

const (
	connectTimeout = 15 * time.Second
	leaveTimeout   = 3 * time.Second
)

var (
	flagIdentity string
	flagHeadless bool
)

var joinCmd = &cobra.Command{
	Use:     "join <room>",
	Aliases: []string{"j"},
	Short:   "Join a call room",
	Long: `Join a call room and connect to whoever else is in it.

The room can be given as a bare id, a ?room= link or a /r/<id> link.

Examples:
  warpcall join standup
  warpcall join https://warpcall.qzz.io/r/standup
  warpcall join --headless --relay standup`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		roomID, err := call.ParseRoom(args[0])
		if err != nil {
			return err
		}
		return joinRoom(roomID)
	},
}

// callSink is what the join command renders to: the bubbletea view or the
// headless log sink.
type callSink interface {
	room.Sink
	Run() error
	Quit()
}

type headless struct {
	*ui.LogSink
	done chan struct{}
	once sync.Once
}

func (h *headless) Run() error {
	<-h.done
	return nil
}

func (h *headless) Quit() {
	h.once.Do(func() { close(h.done) })
}

func joinRoom(roomID call.RoomID) error {
	log, closer, err := logging.Init()
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer closer.Close()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.ForceRelay && cfg.TURNServers() == nil {
		return fmt.Errorf("cannot force relay mode without TURN server configured")
	}

	engine, err := webrtc.NewPionEngine(log)
	if err != nil {
		return call.MediaError("start engine", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	handler, err := connect(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer handler.Close()

	identity := call.MemberID(flagIdentity)
	if identity == "" {
		identity = call.RandomMemberID()
	}

	coord := room.New(room.Config{
		Transport:           handler,
		Engine:              engine,
		ICE:                 cfg.PeerConfiguration(),
		Constraints:         webrtc.DefaultConstraints(),
		DropEarlyCandidates: cfg.DropEarlyCandidates,
		MaxEarlyCandidates:  cfg.MaxEarlyCandidates,
		Logger:              log,
	})

	joinCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	identity, err = coord.Enter(joinCtx, roomID, identity)
	cancel()
	if err != nil {
		return err
	}

	var sink callSink
	if flagHeadless {
		sink = &headless{LogSink: ui.NewLogSink(log), done: make(chan struct{})}
		ui.PrintSuccess(fmt.Sprintf("Joined room %s as %s", roomID, identity))
		ui.PrintInfo("Press Ctrl+C to leave")
	} else {
		sink = ui.NewCallUI(roomID, identity, coord, log)
	}
	coord.SetSink(sink)

	runErr := make(chan error, 1)
	go func() {
		err := coord.Run(ctx)
		sink.Quit()
		runErr <- err
	}()

	go func() {
		<-ctx.Done()
		sink.Quit()
	}()

	uiErr := sink.Run()
	stop()
	err = <-runErr

	leaveCtx, cancel := context.WithTimeout(context.Background(), leaveTimeout)
	defer cancel()
	if lerr := coord.Leave(leaveCtx); lerr != nil {
		log.Debug().Err(lerr).Msg("leave")
	}

	fmt.Fprintln(ui.Output)
	ui.RenderSessionSummary(ui.Output, coord.Summary())

	if uiErr != nil {
		return uiErr
	}
	if errors.Is(err, room.ErrTransportClosed) {
		return fmt.Errorf("lost connection to relay: %w", err)
	}
	return err
}

func connect(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*signaling.Handler, error) {
	spinner := ui.NewConnectionSpinner("Connecting to server...")
	spinner.Start()

	client := signaling.NewClient(cfg.Server, log)
	connectCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := client.Connect(connectCtx); err != nil {
		spinner.Error("Could not reach the relay")
		return nil, call.TransportError("connect to server", err)
	}
	spinner.Success("Connected to " + cfg.Server)

	handler := signaling.NewHandler(client, log)
	go handler.Start()
	return handler, nil
}

func init() {
	rootCmd.AddCommand(joinCmd)

	joinCmd.Flags().StringVarP(&flagIdentity, "identity", "i", "", "Identity to log in with (random when empty)")
	joinCmd.Flags().BoolVar(&flagHeadless, "headless", false, "Log call events instead of showing the call view")
}
