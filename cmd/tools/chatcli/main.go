package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/zhouzirui/z-chatroom/backend/internal/config"
	"github.com/zhouzirui/z-chatroom/backend/internal/logging"
	"github.com/zhouzirui/z-chatroom/backend/internal/service/chat"
	"github.com/zhouzirui/z-chatroom/backend/internal/service/completion"
	"github.com/zhouzirui/z-chatroom/backend/internal/service/room"
	"github.com/zhouzirui/z-chatroom/backend/internal/storage"
)

// app holds what every subcommand needs; it is filled in PersistentPreRunE.
type app struct {
	cfg     *config.Config
	backend storage.Backend
	svc     *chat.Service
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:           "chatcli",
		Short:         "Manage chat rooms and talk to the configured model from the terminal",
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd.Context())
		},
		PersistentPostRun: func(_ *cobra.Command, _ []string) {
			if a.backend != nil {
				_ = a.backend.Close()
			}
		},
	}

	roomsCmd := &cobra.Command{Use: "rooms", Short: "List, create and delete rooms"}
	roomsCmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List rooms in creation order",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				printRooms(cmd.OutOrStdout(), a.svc.ListRooms(cmd.Context()))
				return nil
			},
		},
		&cobra.Command{
			Use:   "create",
			Short: "Create an empty room",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				r, err := a.svc.CreateRoom(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), r.ID)
				return nil
			},
		},
		&cobra.Command{
			Use:   "delete <roomID>",
			Short: "Delete a room",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.svc.DeleteRoom(cmd.Context(), args[0])
			},
		},
	)

	showCmd := &cobra.Command{
		Use:   "show <roomID>",
		Short: "Print a room's messages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := a.svc.GetRoom(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printMessages(cmd.OutOrStdout(), r.Messages)
			return nil
		},
	}

	var verbose bool
	sendCmd := &cobra.Command{
		Use:   "send <roomID> <text>",
		Short: "Send a message and wait for the reply",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctl, err := a.svc.Open(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if verbose {
				ctl.Subscribe(chat.ObserverFuncs{
					OnLoading: func(_ string, loading bool) {
						if loading {
							fmt.Fprintln(out, "... waiting for reply")
						}
					},
				})
			}

			outcome, err := ctl.SendMessage(cmd.Context(), args[1])
			if err != nil {
				return err
			}
			if outcome.Failed() {
				return fmt.Errorf("%s", outcome.ErrorMessage)
			}
			fmt.Fprintln(out, outcome.Reply.Content)
			return nil
		},
	}
	sendCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "print progress while waiting")

	rootCmd.AddCommand(roomsCmd, showCmd, sendCmd)
	return rootCmd
}

func (a *app) init(ctx context.Context) error {
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	logging.Setup(cfg.Log.Level, cfg.Log.Format)
	if envErr != nil {
		log.Debug().Err(envErr).Msg("no .env file loaded")
	}

	backend, err := cfg.Store.OpenBackend(ctx)
	if err != nil {
		return fmt.Errorf("open room storage: %w", err)
	}

	var client completion.Client
	if cfg.AI.Enabled() {
		client, err = completion.New(ctx, cfg.AI)
		if err != nil {
			log.Warn().Err(err).Msg("completion client unavailable")
			client = nil
		}
	}

	model := cfg.AI.Model
	if cfg.AI.Provider == config.ProviderArk {
		model = cfg.AI.ArkModel
	}

	a.cfg = cfg
	a.backend = backend
	a.svc = chat.NewService(room.Open(ctx, backend, cfg.Store.Key), client, chat.Options{
		Model:        model,
		SystemPrompt: cfg.AI.SystemPrompt,
	})
	return nil
}
