package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"rentalops/src/database"
	"rentalops/src/server"

	logger "github.com/sirupsen/logrus"
)

var (
	APP_NAME = os.Getenv("APP_NAME")
)

func SetupLogger() {
	levelStr := strings.ToLower(os.Getenv("LOG_LEVEL"))

	level, err := logger.ParseLevel(levelStr)
	if err != nil {
		level = logger.DebugLevel
	}

	logger.SetLevel(level)
	if strings.EqualFold(os.Getenv("LOG_FORMAT"), "json") {
		logger.SetFormatter(&logger.JSONFormatter{})
		return
	}
	logger.SetFormatter(&logger.TextFormatter{
		FullTimestamp: true,
	})
}

func main() {
	SetupLogger()
	defer handlePanic()

	dbConfig := database.GetConfig()
	if !dbConfig.EnableDB {
		dbConfig.DatabaseURLMain = ""
	}
	db, err := database.Open(dbConfig)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to database")
	}

	app, err := server.NewApp(server.LoadSettings(), database.NewConnection(db))
	if err != nil {
		logger.WithError(err).Fatal("Failed to build application")
	}

	server.StartServer(server.GetConfig(), app)
}

func handlePanic() {
	if r := recover(); r != nil {
		logger.WithError(fmt.Errorf("%+v", r)).Error(fmt.Sprintf("Application %s panic", APP_NAME))
	}
	//nolint
	time.Sleep(time.Second * 5)
}
