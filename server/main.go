package main

import (
	"fmt"
	"net/http"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"example.com/trigger_bridge/pkg/config"
)

var v = config.New()

var rootCmd = &cobra.Command{
	Use:   "server",
	Short: "Room signalling server forwarding peer audio and trigger events",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.ReadFile(v); err != nil {
			return err
		}
		return serve(v)
	},
}

func init() {
	rootCmd.Flags().IntP("port", "p", 8080, "Port to listen on")
	rootCmd.Flags().String("log-level", "info", "Log level (debug, info, warn, error)")
	v.BindPFlag("port", rootCmd.Flags().Lookup("port"))
	v.BindPFlag("log_level", rootCmd.Flags().Lookup("log-level"))
}

func serve(v *viper.Viper) error {
	logger := log.New(os.Stderr)
	logger.SetReportTimestamp(true)
	level, err := log.ParseLevel(v.GetString("log_level"))
	if err != nil {
		return err
	}
	logger.SetLevel(level)

	port := v.GetInt("port")
	mux := http.NewServeMux()
	NewServer(logger).Routes(mux)

	logger.Info("signalling server starting", "addr", fmt.Sprintf(":%d", port))
	logger.Info("websocket endpoint", "url", fmt.Sprintf("ws://localhost:%d/ws", port))
	return http.ListenAndServe(fmt.Sprintf(":%d", port), mux)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal("server failed", "err", err)
	}
}
