package main

import (
	"context"
	"io"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"edupage"
)

const workerStaggerDelay = 250 * time.Millisecond

var engineLog *log.Logger

type moduleLogger struct {
	logger *log.Logger
}

func (m *moduleLogger) Log(format string, args ...any) {
	m.logger.Printf("      "+format, args...)
}

func main() {
	accountsFile, workerCount := parseArgs()

	engineLogFile, moduleLogFile, modLog := setupLogging()
	defer engineLogFile.Close()
	defer moduleLogFile.Close()

	_ = godotenv.Load()

	accounts, err := edupage.LoadAccounts(accountsFile)
	if err != nil {
		engineLog.Fatalf("Failed to load accounts: %v", err)
	}
	engineLog.Printf("Loaded %d accounts", len(accounts))

	proxyManager := loadProxies()
	solver := loadSolver()

	scheduler := edupage.NewScheduler(workerCount, proxyManager, solver, workerStaggerDelay, &moduleLogger{logger: modLog})
	os.Exit(run(scheduler, accounts))
}

func parseArgs() (string, int) {
	if len(os.Args) < 3 {
		log.Fatal("Usage: edupage-sync <accounts-file> <worker-count>\nAccounts file: one subdomain:username:password per line")
	}

	workerCount, err := strconv.Atoi(os.Args[2])
	if err != nil || workerCount <= 0 {
		log.Fatal("worker-count must be a positive integer")
	}
	return os.Args[1], workerCount
}

func setupLogging() (engineLogFile, moduleLogFile *os.File, modLog *log.Logger) {
	var err error

	engineLogFile, err = os.OpenFile("engine.log", os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		log.Fatalf("Failed to open engine log file: %v", err)
	}
	engineLog = log.New(io.MultiWriter(os.Stdout, engineLogFile), "", log.LstdFlags)

	moduleLogFile, err = os.OpenFile("edupage.log", os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		engineLog.Fatalf("Failed to open module log file: %v", err)
	}
	modLog = log.New(io.MultiWriter(os.Stdout, moduleLogFile), "", log.LstdFlags)

	return engineLogFile, moduleLogFile, modLog
}

// loadProxies is optional: without proxies.txt everything goes direct.
func loadProxies() *edupage.ProxyManager {
	if _, err := os.Stat("proxies.txt"); err != nil {
		return nil
	}
	proxyManager, err := edupage.NewProxyManager("proxies.txt")
	if err != nil {
		engineLog.Fatalf("Failed to load proxies: %v", err)
	}
	engineLog.Printf("Loaded %d proxies", proxyManager.Count())
	return proxyManager
}

// loadSolver wires 2Captcha when a key is configured; otherwise challenges
// are reported with their URL for a human to answer.
func loadSolver() edupage.CaptchaSolver {
	key := edupage.GetCaptchaAPIKey()
	if key == "" {
		engineLog.Printf("No captcha solver configured; challenges will need manual handling")
		return nil
	}
	return &edupage.TwoCaptchaSolver{APIKey: key}
}

func run(scheduler *edupage.Scheduler, accounts []edupage.Account) int {
	engineLog.Printf("Starting sync for %d accounts (stagger: %v)...", len(accounts), workerStaggerDelay)

	ctx := context.Background()
	scheduler.Start(ctx)

	go func() {
		for _, account := range accounts {
			scheduler.Submit(account)
		}
	}()

	var done, succeeded int
	var fatalErr error

	for result := range scheduler.Results() {
		if result.Fatal {
			fatalErr = result.Error
			engineLog.Printf("FATAL ERROR: %v", result.Error)
			break
		}

		done++
		switch {
		case result.Error == nil:
			succeeded++
			engineLog.Printf("[%d/%d] SUCCESS: %s@%s (%d bytes)",
				done, len(accounts), result.Account.Username, result.Account.Subdomain, len(result.Payload))
		case result.ChallengeURL != "":
			engineLog.Printf("[%d/%d] CAPTCHA: %s@%s solve at %s",
				done, len(accounts), result.Account.Username, result.Account.Subdomain, result.ChallengeURL)
		default:
			engineLog.Printf("[%d/%d] FAILED: %s@%s: %v",
				done, len(accounts), result.Account.Username, result.Account.Subdomain, result.Error)
		}

		if done >= len(accounts) {
			break
		}
	}

	scheduler.Close()

	if fatalErr != nil {
		engineLog.Printf("=== ABORTED: %d/%d synced (fatal error: %v) ===", succeeded, len(accounts), fatalErr)
		return 1
	}

	engineLog.Printf("=== Complete: %d/%d accounts synced ===", succeeded, len(accounts))
	return 0
}
