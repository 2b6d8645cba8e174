package main

import (
	"fmt"
	"os"

	"github.com/go-chatgate/go-chatgate/lib/config"
	"github.com/go-chatgate/go-chatgate/lib/gateway"
	"github.com/go-chatgate/go-chatgate/lib/tui"
	"github.com/go-chatgate/go-chatgate/lib/util/signals"
	"github.com/go-i2p/logger"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var log = logger.GetGoI2PLogger()

var rootCmd = &cobra.Command{
	Use:   "chatgate",
	Short: "Multi-tenant messaging session gateway",
	Long: `chatgate keeps one live messaging session per registered client account
and exposes all of them over a local HTTP/JSON API. New accounts are
linked by scanning a pairing QR code; credentials are kept on disk so
sessions are restored automatically on the next start.`,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the gateway until interrupted",
	RunE:  runServe,
}

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Attach a terminal dashboard to a running gateway",
	RunE:  runMonitor,
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect gateway configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration as YAML",
	RunE:  runConfigShow,
}

var monitorAddress string

func init() {
	cobra.OnInitialize(config.InitConfig)

	rootCmd.PersistentFlags().StringVar(&config.CfgFile, "config", "", "config file (default is $HOME/.chatgate/config.yaml)")

	monitorCmd.Flags().StringVar(&monitorAddress, "address", "", "gateway API address (defaults to the configured http.address)")

	configCmd.AddCommand(configShowCmd)
	rootCmd.AddCommand(serveCmd, monitorCmd, configCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	go signals.Handle()

	log.Debug("starting up chatgate gateway")
	g, err := gateway.CreateGateway(config.NewGatewayConfigFromViper())
	if err != nil {
		log.WithError(err).Error("Failed to create gateway")
		return err
	}

	g.Start()
	g.Wait()
	signals.StopHandle()
	return g.Close()
}

func runMonitor(cmd *cobra.Command, args []string) error {
	address := monitorAddress
	if address == "" {
		address = config.NewGatewayConfigFromViper().HTTP.Address
	}
	return tui.Run(address)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	out, err := yaml.Marshal(config.EffectiveSettings())
	if err != nil {
		return err
	}
	fmt.Print(string(out))
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
