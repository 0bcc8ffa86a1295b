// Copyright (C) 2025 Plinth Labs, Inc.
// See LICENSE for copying information.

package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"plinth.io/plinth/app"
	"plinth.io/plinth/pkg/cache"
	"plinth.io/plinth/storage/boltstore"
	"plinth.io/plinth/storage/storelogger"
)

var (
	rootCmd = &cobra.Command{
		Use:   "plinth",
		Short: "Plinth object pipeline",
	}
	runCmd = &cobra.Command{
		Use:   "run",
		Short: "Run the object pipeline core",
		RunE:  cmdRun,
	}
	setupCmd = &cobra.Command{
		Use:   "setup",
		Short: "Write the default configuration file",
		RunE:  cmdSetup,
	}
)

func init() {
	flags := rootCmd.PersistentFlags()
	flags.String("database", "plinth.db", "path to the bolt database file")
	flags.String("redis", "", "redis address for the role cache; empty uses in-process cache")
	flags.String("config", "", "path to configuration file")
	flags.Bool("allow-client-class-creation", false, "let non-master clients create classes")
	flags.Bool("allow-custom-object-id", false, "accept client-supplied object ids")
	flags.Duration("session-length", 365*24*time.Hour, "lifetime of issued session tokens")
	flags.Bool("verify-user-emails", false, "send verification emails and track emailVerified")
	flags.Bool("prevent-unverified-login", false, "withhold session tokens from unverified accounts")

	_ = viper.BindPFlags(flags)
	viper.SetEnvPrefix("plinth")
	viper.AutomaticEnv()

	rootCmd.AddCommand(runCmd, setupCmd)
}

func cmdRun(cmd *cobra.Command, args []string) error {
	if configFile := viper.GetString("config"); configFile != "" {
		viper.SetConfigFile(configFile)
		if err := viper.ReadInConfig(); err != nil {
			return err
		}
	}

	log, err := zap.NewProduction()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	adapter, err := boltstore.New(log.Named("bolt"), viper.GetString("database"))
	if err != nil {
		return err
	}

	var cacheClient cache.Client
	if address := viper.GetString("redis"); address != "" {
		cacheClient, err = cache.NewRedis(address, "", 0)
		if err != nil {
			return err
		}
	} else {
		cacheClient = cache.NewMemory()
	}

	config := app.DefaultConfig()
	config.AllowClientClassCreation = viper.GetBool("allow-client-class-creation")
	config.AllowCustomObjectID = viper.GetBool("allow-custom-object-id")
	config.SessionLength = viper.GetDuration("session-length")
	config.VerifyUserEmails = viper.GetBool("verify-user-emails")
	config.PreventLoginWithUnverifiedEmail = viper.GetBool("prevent-unverified-login")

	instance := app.New(log, storelogger.New(log.Named("storage"), adapter), cacheClient, config)
	defer func() {
		if err := instance.Close(); err != nil {
			log.Error("close failed", zap.Error(err))
		}
	}()

	log.Info("object pipeline ready",
		zap.String("database", viper.GetString("database")))

	// The wire transports are external; block until asked to stop.
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	<-signals
	log.Info("shutting down")
	return nil
}

func cmdSetup(cmd *cobra.Command, args []string) error {
	target := viper.GetString("config")
	if target == "" {
		target = "plinth.yaml"
	}
	if err := viper.SafeWriteConfigAs(target); err != nil {
		return err
	}
	fmt.Println("wrote", target)
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
