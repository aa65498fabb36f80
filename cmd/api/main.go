package main

import (
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/taskforge/core/cmd/api/commands"
	_ "github.com/taskforge/core/docs"
)

// @title TaskForge API
// @version 1.0
// @description Event-driven multi-tenant task management backend

// @host localhost:8080
// @BasePath /

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

func main() {
	rootCmd := &cobra.Command{
		Use:   "taskforge",
		Short: "TaskForge API server",
		Long:  "TaskForge is an event-driven task management backend with reminders, recurrence, and a conversational interface.",
	}

	rootCmd.AddCommand(commands.NewServeCommand())
	rootCmd.AddCommand(commands.NewWorkerCommand())
	rootCmd.AddCommand(commands.NewMigrateCommand())
	rootCmd.AddCommand(commands.NewVersionCommand())

	if err := rootCmd.Execute(); err != nil {
		log.Printf("Command execution failed: %v", err)
		os.Exit(1)
	}
}
