package kv

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

// parseValue decodes a command-line value. JSON text becomes the decoded
// value, everything else is kept as a plain string.
func parseValue(arg string) any {
	var decoded any
	if err := json.Unmarshal([]byte(arg), &decoded); err == nil {
		return decoded
	}
	return arg
}

// formatValue renders a stored value for terminal output.
func formatValue(value any) string {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Sprintf("%v", value)
	}
	return string(raw)
}

var (
	setCmd = &cobra.Command{
		Use:   "set [key] [value]",
		Short: "Sets the value for a key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cliStore.Set(parseValue(args[1])); err != nil {
				return err
			} else {
				fmt.Println("set successfully")
			}
			return nil
		},
	}
	getCmd = &cobra.Command{
		Use:   "get [key]",
		Short: "Reads the value for a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			value, ok := cliStore.Get()
			fmt.Printf("key=%s, found=%v, value=%s\n", args[0], ok, formatValue(value))
			return nil
		},
	}
	rawCmd = &cobra.Command{
		Use:   "raw [key]",
		Short: "Shows the persisted record envelope without applying any read policy",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rec, ok := cliStore.GetRaw()
			if !ok {
				fmt.Printf("key=%s, found=false\n", args[0])
				return nil
			}
			fmt.Printf("key=%s, version=%d, timestamp=%s, expiresAt=%d, value=%s\n",
				args[0],
				rec.Version,
				time.UnixMilli(rec.Timestamp).Format(time.RFC3339),
				rec.ExpiresAt,
				formatValue(rec.Value),
			)
			return nil
		},
	}
	delCmd = &cobra.Command{
		Use:   "del [key]",
		Short: "Deletes a key value pair",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cliStore.Remove(); err != nil {
				return err
			} else {
				fmt.Println("delete successfully")
			}
			return nil
		},
	}
	hasCmd = &cobra.Command{
		Use:   "has [key]",
		Short: "Checks if a key holds a valid value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Printf("key=%s, found=%t\n", args[0], cliStore.Has())
			return nil
		},
	}
	watchCmd = &cobra.Command{
		Use:   "watch [key]",
		Short: "Prints every change to a key until interrupted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			unsubscribe := cliStore.OnUpdate(func(value any, present bool) {
				if present {
					fmt.Printf("key=%s, value=%s\n", args[0], formatValue(value))
				} else {
					fmt.Printf("key=%s, removed\n", args[0])
				}
			})
			defer unsubscribe()

			fmt.Printf("watching key=%s (ctrl-c to stop)\n", args[0])
			stop := make(chan os.Signal, 1)
			signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
			<-stop
			return nil
		},
	}
)
