package main

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"github.com/susu3304/falta1/internal/client"
	"github.com/susu3304/falta1/internal/config"
	"github.com/susu3304/falta1/internal/model"
	"github.com/susu3304/falta1/internal/registry"
)

func newAPIClient() (*client.Client, error) {
	cfg, err := config.LoadClient()
	if err != nil {
		return nil, err
	}
	return client.New(cfg.APIURL, &http.Client{Timeout: 15 * time.Second}), nil
}

func participantsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "participants [event-id]",
		Short: "List the confirmed participants of an event",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			defer initLogger(false).Close()
			eventID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid event id %q", args[0])
			}
			api, err := newAPIClient()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			ev, err := registry.NewEventStore(api).Get(ctx, eventID)
			if err != nil {
				return err
			}
			ps, err := registry.New(api).Refresh(ctx, eventID)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s · %s por pessoa\n%s\n", ev.Description, ev.PerPersonShare(), participantsList(*ev, ps))
			return nil
		},
	}
}

func eventsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "events",
		Short: "List events",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			defer initLogger(false).Close()
			api, err := newAPIClient()
			if err != nil {
				return err
			}
			events, err := registry.NewEventStore(api).List(cmd.Context())
			if err != nil {
				return err
			}
			for _, ev := range events {
				fmt.Fprintf(cmd.OutOrStdout(), "%4d  %-30s  %s  %s por pessoa (%d pessoas)\n",
					ev.ID, ev.Description, ev.Date, ev.PerPersonShare(), ev.PeopleCount)
			}
			return nil
		},
	}
}

func createEventCmd() *cobra.Command {
	var ev model.NewEvent
	var value float64

	cmd := &cobra.Command{
		Use:   "create-event",
		Short: "Create an event whose cost is split among its participants",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			defer initLogger(false).Close()
			ev.Value = model.MoneyFromFloat(value)
			api, err := newAPIClient()
			if err != nil {
				return err
			}
			created, err := registry.NewEventStore(api).Create(cmd.Context(), ev)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Evento %d criado: %s por pessoa\n", created.ID, created.PerPersonShare())
			return nil
		},
	}
	cmd.Flags().StringVar(&ev.Description, "description", "", "what the event is")
	cmd.Flags().StringVar(&ev.Modality, "modality", "", "sport or kind of event")
	cmd.Flags().Float64Var(&value, "value", 0, "total cost in BRL")
	cmd.Flags().IntVar(&ev.PeopleCount, "people", 0, "number of people splitting the cost")
	cmd.Flags().StringVar(&ev.Date, "date", "", "when it happens")
	cmd.Flags().StringVar(&ev.Address, "address", "", "where it happens")
	cmd.Flags().StringVar(&ev.Image, "image", "", "image url")
	cmd.Flags().StringVar(&ev.Password, "password", "", "secret required to delete the event or its participants")
	_ = cmd.MarkFlagRequired("description")
	_ = cmd.MarkFlagRequired("value")
	_ = cmd.MarkFlagRequired("people")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func removeParticipantCmd() *cobra.Command {
	var password string
	var eventID int64

	cmd := &cobra.Command{
		Use:   "remove-participant [txid]",
		Short: "Remove a confirmed participant (requires the event password)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			defer initLogger(false).Close()
			api, err := newAPIClient()
			if err != nil {
				return err
			}
			reg := registry.New(api)
			if err := reg.Remove(cmd.Context(), args[0], password); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Participante %s removido.\n", args[0])
			if eventID != 0 {
				return printRemaining(cmd.Context(), cmd, reg, eventID)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&password, "password", "p", "", "event password")
	cmd.Flags().Int64VarP(&eventID, "event", "e", 0, "event id, to print the updated list")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func printRemaining(ctx context.Context, cmd *cobra.Command, reg *registry.Registry, eventID int64) error {
	ps, err := reg.Refresh(ctx, eventID)
	if err != nil {
		return err
	}
	for i, p := range ps {
		fmt.Fprintf(cmd.OutOrStdout(), "%2d. %s\n", i+1, p.DisplayName)
	}
	return nil
}

func deleteEventCmd() *cobra.Command {
	var password string

	cmd := &cobra.Command{
		Use:   "delete-event [event-id]",
		Short: "Delete an event and all its participants (requires the event password)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			defer initLogger(false).Close()
			eventID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid event id %q", args[0])
			}
			api, err := newAPIClient()
			if err != nil {
				return err
			}
			if err := registry.NewEventStore(api).Delete(cmd.Context(), eventID, password); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Evento %d removido.\n", eventID)
			return nil
		},
	}
	cmd.Flags().StringVarP(&password, "password", "p", "", "event password")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}
