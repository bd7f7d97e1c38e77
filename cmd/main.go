package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"rentalops/src/database"
	"rentalops/src/notification"
	"rentalops/src/server"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"
)

var Version string

func main() {
	app := cli.NewApp()
	app.Name = "rentalops"
	app.Usage = "The rentalops command line interface"
	app.Version = Version

	app.Commands = []cli.Command{
		serveCMD,
		notifyTestCMD,
		rulesCMD,
	}

	if err := app.Run(os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var (
	serveCMD = cli.Command{
		Name:        "serve",
		Usage:       "run the HTTP API",
		Action:      serveAction,
		ArgsUsage:   "",
		Flags:       []cli.Flag{},
		Description: `Run the property API with the error monitoring endpoints`,
	}
	notifyTestCMD = cli.Command{
		Name:      "notify-test",
		Usage:     "send a test notification",
		Action:    notifyTestAction,
		ArgsUsage: "",
		Flags: []cli.Flag{
			cli.StringFlag{
				Name:  "channel",
				Usage: "console, email, chat, sms or webhook; all channels when empty",
			},
			cli.DurationFlag{
				Name:  "timeout",
				Usage: "give up on slow channels after this long",
				Value: 30 * time.Second,
			},
		},
		Description: `Deliver a synthetic notification through the configured channels, bypassing rules and throttling`,
	}
	rulesCMD = cli.Command{
		Name:      "rules",
		Usage:     "print the effective notification rules",
		Action:    rulesAction,
		ArgsUsage: "",
		Flags: []cli.Flag{
			cli.StringFlag{
				Name:   "file",
				Usage:  "TOML rules file merged over the built-in rules",
				EnvVar: "NOTIFY_RULES_FILE",
			},
		},
		Description: `Validate a rules file and list the rules the dispatcher would run with`,
	}
)

func serveAction(_ *cli.Context) error {
	logrus.Info("Starting serve CMD")

	dbConfig := database.GetConfig()
	if !dbConfig.EnableDB {
		dbConfig.DatabaseURLMain = ""
	}
	db, err := database.Open(dbConfig)
	if err != nil {
		logrus.WithError(err).Error("Failed to connect to database")
		return err
	}

	app, err := server.NewApp(server.LoadSettings(), database.NewConnection(db))
	if err != nil {
		logrus.WithError(err).Error("Starting cmd")
		return err
	}
	server.StartServer(server.GetConfig(), app)
	return nil
}

func notifyTestAction(c *cli.Context) error {
	log := logrus.WithField("cmd", "notify-test")

	dispatcher := notification.NewDispatcher(notification.GetConfig())
	ctx, cancel := context.WithTimeout(context.Background(), c.Duration("timeout"))
	defer cancel()

	failed := 0
	for _, res := range dispatcher.TestNotification(ctx, c.String("channel")) {
		status := "ok"
		switch {
		case !res.Enabled && res.Error == "channel not configured":
			status = "disabled"
		case !res.Success:
			status = "failed"
			failed++
		}
		line := fmt.Sprintf("%-10s %s", res.Channel, status)
		if res.Error != "" {
			line += " (" + res.Error + ")"
		}
		fmt.Println(line)
	}
	if failed > 0 {
		log.WithField("failed", failed).Warn("Test notification not delivered")
		return fmt.Errorf("%d channel(s) failed", failed)
	}
	return nil
}

func rulesAction(c *cli.Context) error {
	rules := notification.SeedRules()
	if path := c.String("file"); path != "" {
		extra, err := notification.LoadRulesFile(path)
		if err != nil {
			logrus.WithError(err).Error("Invalid rules file")
			return err
		}
		rules = notification.MergeRules(rules, extra)
	}

	for _, r := range rules {
		state := "enabled"
		if !r.Enabled {
			state = "disabled"
		}
		fmt.Printf("%-24s %-8s channels=%s\n", r.ID, state, strings.Join(r.Channels, ","))
	}
	return nil
}
