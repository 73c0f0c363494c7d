package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/susu3304/falta1/internal/channel"
	"github.com/susu3304/falta1/internal/client"
	"github.com/susu3304/falta1/internal/config"
	"github.com/susu3304/falta1/internal/model"
	"github.com/susu3304/falta1/internal/participation"
	"github.com/susu3304/falta1/internal/registry"
)

func participateCmd() *cobra.Command {
	var eventID int64
	var name string

	cmd := &cobra.Command{
		Use:   "participate",
		Short: "Pay your share of an event over PIX and wait for confirmation",
		Long: `Request a PIX charge for your share of an event and wait until the
payment is confirmed.

While waiting, type:
  s  check the payment status now
  b  go back and enter another name (the current charge is abandoned)
  c  cancel`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			defer initLogger(false).Close()
			return runParticipate(cmd.OutOrStdout(), os.Stdin, eventID, name)
		},
	}
	cmd.Flags().Int64VarP(&eventID, "event", "e", 0, "event id")
	cmd.Flags().StringVarP(&name, "name", "n", "", "display name (prompted when empty)")
	_ = cmd.MarkFlagRequired("event")
	return cmd
}

func runParticipate(out io.Writer, in io.Reader, eventID int64, name string) error {
	cfg, err := config.LoadClient()
	if err != nil {
		return err
	}
	policy, err := participation.ParseTimeoutPolicy(cfg.TimeoutPolicy)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	api := client.New(cfg.APIURL, nil)
	ev, err := registry.NewEventStore(api).Get(ctx, eventID)
	if err != nil {
		return fmt.Errorf("failed to load event %d: %w", eventID, err)
	}
	fmt.Fprintf(out, "%s · %s por pessoa\n", ev.Description, ev.PerPersonShare())

	opts := channel.DefaultOptions()
	opts.MaxAttempts = cfg.ChannelMaxAttempts
	ch := channel.New(&channel.WebSocketTransport{URL: cfg.ChannelURL}, opts)

	r := newRenderer(out, *ev)
	session := participation.New(eventID, api, ch, registry.New(api), participation.Options{
		SettlementTimeout: cfg.SettlementTimeout,
		TimeoutPolicy:     policy,
		Status:            api,
		OnChange:          r.render,
	})
	defer session.Close()

	lines := make(chan string)
	go func() {
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			lines <- strings.TrimSpace(sc.Text())
		}
		close(lines)
	}()

	if name != "" {
		if err := session.SubmitName(name); err != nil {
			fmt.Fprintln(out, err)
		}
	} else {
		fmt.Fprint(out, "Seu nome: ")
	}

	for {
		select {
		case <-ctx.Done():
			_ = session.Cancel()
			fmt.Fprintln(out, "\nCancelado.")
			return nil
		case <-r.done:
			return r.result()
		case line, ok := <-lines:
			if !ok {
				_ = session.Cancel()
				return r.result()
			}
			if err := handleInput(ctx, session, line); err != nil {
				fmt.Fprintln(out, err)
			}
		}
	}
}

// handleInput maps a line of input to a session action for the current state.
func handleInput(ctx context.Context, s *participation.Session, line string) error {
	switch s.State() {
	case participation.CollectingName, participation.Failed:
		return s.SubmitName(line)
	case participation.AwaitingSettlement, participation.ManualCheck:
		switch strings.ToLower(line) {
		case "s", "status":
			return s.CheckStatus(ctx)
		case "b", "voltar":
			return s.Back()
		case "c", "cancelar":
			return s.Cancel()
		case "":
			return nil
		}
		return errors.New("digite s (status), b (voltar) ou c (cancelar)")
	}
	return nil
}

// renderer prints session changes. It runs on the session loop.
type renderer struct {
	out  io.Writer
	ev   model.Event
	last participation.Snapshot

	mu       sync.Mutex
	final    participation.Snapshot
	done     chan struct{}
	doneOnce sync.Once
}

func newRenderer(out io.Writer, ev model.Event) *renderer {
	return &renderer{out: out, ev: ev, last: participation.Snapshot{State: participation.CollectingName}, done: make(chan struct{})}
}

func (r *renderer) render(snap participation.Snapshot) {
	prev := r.last
	r.last = snap
	if text := describe(r.ev, prev, snap); text != "" {
		fmt.Fprintln(r.out, text)
	}
	// A settled session is finished once the participant refresh landed
	// or failed.
	settledDone := snap.Participants != nil || snap.Warning != ""
	if snap.State.Terminal() && (snap.State != participation.Settled || settledDone) {
		r.mu.Lock()
		r.final = snap
		r.mu.Unlock()
		r.doneOnce.Do(func() { close(r.done) })
	}
}

func (r *renderer) result() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.final.State == participation.TimedOut {
		return participation.ErrSettlementTimeout
	}
	return nil
}

// describe returns what changed between two snapshots, or "" when nothing
// worth printing did.
func describe(ev model.Event, prev, snap participation.Snapshot) string {
	if snap.Warning != "" && snap.Warning != prev.Warning {
		return "⚠ " + snap.Warning
	}
	if snap.State == prev.State {
		if snap.State == participation.Settled && snap.Participants != nil && prev.Participants == nil {
			return participantsList(ev, snap.Participants)
		}
		return ""
	}

	switch snap.State {
	case participation.CollectingName:
		return "Seu nome: "
	case participation.RequestingPayment:
		return "Gerando cobrança PIX para " + snap.DisplayName + "..."
	case participation.AwaitingSettlement:
		if snap.Request == nil {
			return ""
		}
		return fmt.Sprintf("PIX copia e cola (txid %s):\n\n%s\n\nAguardando confirmação do pagamento...", snap.Request.TxID, snap.Request.BRCode)
	case participation.ManualCheck:
		return "Não foi possível acompanhar o pagamento automaticamente. Digite s para verificar o status."
	case participation.Settled:
		msg := "✅ Pagamento confirmado!"
		if snap.Participants != nil {
			msg += "\n" + participantsList(ev, snap.Participants)
		}
		return msg
	case participation.Failed:
		return fmt.Sprintf("Falha ao gerar a cobrança: %v\nDigite o nome para tentar de novo.", snap.Err)
	case participation.Cancelled:
		return "Cancelado."
	case participation.TimedOut:
		return "O pagamento não foi confirmado a tempo."
	}
	return ""
}

func participantsList(ev model.Event, ps []model.Participant) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Confirmados (%d/%d):", len(ps), ev.PeopleCount)
	for i, p := range ps {
		fmt.Fprintf(&b, "\n%2d. %s", i+1, p.DisplayName)
	}
	if missing := ev.Missing(len(ps)); missing > 0 {
		fmt.Fprintf(&b, "\nFaltam %d.", missing)
	}
	return b.String()
}
