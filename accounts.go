package edupage

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// Account is one portal login: which subdomain it lives on plus its
// credentials.
type Account struct {
	Subdomain string
	Username  string
	Password  string
}

// LoadAccounts reads subdomain:username:password lines from a file. Blank
// lines and #-comments are skipped; passwords may contain colons.
func LoadAccounts(filename string) ([]Account, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open accounts file: %w", err)
	}
	defer file.Close()

	var accounts []Account
	seen := make(map[string]bool)

	scanner := bufio.NewScanner(file)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, ":", 3)
		if len(parts) != 3 || parts[0] == "" || parts[1] == "" {
			return nil, fmt.Errorf("accounts file line %d: want subdomain:username:password", lineNum)
		}

		key := parts[0] + ":" + parts[1]
		if seen[key] {
			continue
		}
		seen[key] = true

		accounts = append(accounts, Account{
			Subdomain: parts[0],
			Username:  parts[1],
			Password:  parts[2],
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading accounts file: %w", err)
	}
	if len(accounts) == 0 {
		return nil, fmt.Errorf("no accounts found in %s", filename)
	}
	return accounts, nil
}
