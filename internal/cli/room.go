package cli

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

// commandTimeout bounds one-shot websocket commands
const commandTimeout = 30 * time.Second

func newRoomCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "room",
		Short: "Room commands",
	}

	cmd.AddCommand(newRoomCreateCmd())
	cmd.AddCommand(newRoomJoinCmd())
	cmd.AddCommand(newRoomShowCmd())
	cmd.AddCommand(newRoomMoveCmd())

	return cmd
}

func newRoomCreateCmd() *cobra.Command {
	var wait bool

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new room and take the X seat",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
			defer cancel()

			conn, err := Dial(ctx, cfg.ServerURL, cfg.Token)
			if err != nil {
				return err
			}
			defer func() { _ = conn.Close() }()

			if err := conn.CreateRoom(); err != nil {
				return err
			}
			evt, err := conn.Await(ctx, TypeRoomCreated)
			if err != nil {
				return err
			}

			out := NewOutput(cfg.Output)
			out.Print(*evt.Room)

			if !wait {
				return nil
			}

			// No timeout while waiting for an opponent
			evt, err = conn.Await(cmd.Context(), TypePlayerJoined)
			if err != nil {
				return err
			}
			out.Print(*evt.Room)
			return nil
		},
	}

	cmd.Flags().BoolVar(&wait, "wait", false, "Stay connected until an opponent joins")

	return cmd
}

func newRoomJoinCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "join <code>",
		Short: "Join a waiting room and take the O seat",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
			defer cancel()

			conn, err := Dial(ctx, cfg.ServerURL, cfg.Token)
			if err != nil {
				return err
			}
			defer func() { _ = conn.Close() }()

			if err := conn.JoinRoom(args[0]); err != nil {
				return err
			}
			evt, err := conn.Await(ctx, TypePlayerJoined)
			if err != nil {
				return err
			}

			out := NewOutput(cfg.Output)
			out.Print(*evt.Room)
			return nil
		},
	}
}

func newRoomShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <code>",
		Short: "Show a room you are seated in",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var result Room

			if err := client.Get("/api/v1/rooms/"+args[0], &result); err != nil {
				return err
			}

			out := NewOutput(cfg.Output)
			out.Print(result)
			return nil
		},
	}
}

func newRoomMoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "move <code> <row> <col>",
		Short: "Play a single move",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			row, col, err := parseCell(args[1] + " " + args[2])
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
			defer cancel()

			conn, err := Dial(ctx, cfg.ServerURL, cfg.Token)
			if err != nil {
				return err
			}
			defer func() { _ = conn.Close() }()

			if err := conn.MakeMove(args[0], row, col); err != nil {
				return err
			}
			evt, err := conn.Await(ctx, TypeMoveMade)
			if err != nil {
				return err
			}

			NewOutput(cfg.Output).PrintEvent(evt)
			return nil
		},
	}
}

// parseCell reads "row col" or "row,col"
func parseCell(s string) (int, int, error) {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t'
	})
	if len(fields) != 2 {
		return 0, 0, fmt.Errorf("expected \"row col\", got %q", s)
	}
	row, err := strconv.Atoi(fields[0])
	if err != nil {
		return 0, 0, fmt.Errorf("invalid row %q", fields[0])
	}
	col, err := strconv.Atoi(fields[1])
	if err != nil {
		return 0, 0, fmt.Errorf("invalid col %q", fields[1])
	}
	return row, col, nil
}
