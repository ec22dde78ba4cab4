package kv

import (
	"github.com/spf13/cobra"

	"github.com/statekit/statekit/cmd/util"
	"github.com/statekit/statekit/lib/schema"
	"github.com/statekit/statekit/lib/store"
	"github.com/statekit/statekit/lib/store/vstore"
)

var (
	cliStore     store.IStore[any]
	closeBackend func()

	// KeyValueCommands represents the KV command group
	KeyValueCommands = &cobra.Command{
		Use:                "kv",
		Short:              "Perform key-value store operations",
		PersistentPreRunE:  setupStore,
		PersistentPostRunE: teardownStore,
	}
)

func init() {
	// Initialize viper
	cobra.OnInitialize(util.InitConfig)

	// Add storage backend flags to the KV command
	util.SetupStorageFlags(KeyValueCommands)

	// Add subcommands
	KeyValueCommands.AddCommand(setCmd)
	KeyValueCommands.AddCommand(getCmd)
	KeyValueCommands.AddCommand(rawCmd)
	KeyValueCommands.AddCommand(delCmd)
	KeyValueCommands.AddCommand(hasCmd)
	KeyValueCommands.AddCommand(watchCmd)
	KeyValueCommands.AddCommand(benchCmd)
}

// setupStore opens the configured backend and a schemaless store over the
// key named by the first argument. Every subcommand takes the key first.
func setupStore(cmd *cobra.Command, args []string) error {
	// Bind command flags to viper
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	if len(args) == 0 {
		// Let the subcommand's own arg validation produce the error message.
		return nil
	}

	backend, closer, err := util.NewBackend()
	if err != nil {
		return err
	}

	logger, err := util.NewLogger()
	if err != nil {
		closer()
		return err
	}

	s, err := vstore.New(vstore.Config[any]{
		Key:     args[0],
		Schema:  schema.Any(),
		Backend: backend,
		Version: util.GetSchemaVersion(),
		TTL:     util.GetTTL(),
		Logger:  logger,
	})
	if err != nil {
		closer()
		return err
	}

	cliStore = s
	closeBackend = closer
	return nil
}

func teardownStore(_ *cobra.Command, _ []string) error {
	if cliStore != nil {
		_ = cliStore.Close()
	}
	if closeBackend != nil {
		closeBackend()
	}
	return nil
}
