package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
)

func newPlayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "play [code]",
		Short: "Play interactively",
		Long: `Create a room (or join one when a code is given) and play in the terminal.

Enter moves as "row col" with rows and columns numbered 0-2.
Type "quit" or press Ctrl+C to disconnect. The room stays open.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			code := ""
			if len(args) == 1 {
				code = strings.ToUpper(args[0])
			}
			return play(ctx, code, os.Stdin, NewOutput(cfg.Output))
		},
	}
}

func play(ctx context.Context, code string, in io.Reader, out *Output) error {
	conn, err := Dial(ctx, cfg.ServerURL, cfg.Token)
	if err != nil {
		return err
	}
	defer func() { _ = conn.Close() }()

	if code == "" {
		err = conn.CreateRoom()
	} else {
		err = conn.JoinRoom(code)
	}
	if err != nil {
		return err
	}

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- strings.TrimSpace(scanner.Text()):
			case <-ctx.Done():
				return
			}
		}
	}()

	events := conn.Events()
	for {
		select {
		case <-ctx.Done():
			out.PrintMessage("Disconnected")
			return nil

		case evt, ok := <-events:
			if !ok {
				if err := conn.Err(); err != nil {
					return fmt.Errorf("connection closed: %w", err)
				}
				return nil
			}
			out.PrintEvent(evt)
			switch evt.Type {
			case TypeRoomCreated, TypePlayerJoined:
				code = evt.Room.RoomID
			case TypeMoveMade:
				if evt.RoomStatus == "finished" {
					return nil
				}
			}

		case line, ok := <-lines:
			if !ok || line == "quit" {
				out.PrintMessage("Disconnected")
				return nil
			}
			if line == "" {
				continue
			}
			if code == "" {
				out.PrintMessage("No room yet")
				continue
			}
			row, col, err := parseCell(line)
			if err != nil {
				out.PrintMessage(err.Error())
				continue
			}
			if err := conn.MakeMove(code, row, col); err != nil {
				return err
			}
		}
	}
}
