package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
)

// VerifyResult holds the outcome of a hash chain verification.
type VerifyResult struct {
	Valid     bool   `json:"valid"`
	Lines     int    `json:"lines"`
	Error     string `json:"error,omitempty"`
	ErrorLine int    `json:"error_line,omitempty"`
}

// Verify reads a JSONL decision log and validates the hash chain. Every
// entry must reference the hash of its predecessor and carry a correct
// hash of itself. Returns Valid=true if the chain is intact, or details
// about the first broken link.
func Verify(path string) VerifyResult {
	f, err := os.Open(path)
	if err != nil {
		return VerifyResult{Error: fmt.Sprintf("open: %v", err)}
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	lineNum := 0
	prevHash := GenesisHash

	for scanner.Scan() {
		lineNum++

		var entry Entry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			return VerifyResult{
				Error:     fmt.Sprintf("parse error: %v", err),
				ErrorLine: lineNum,
			}
		}

		if entry.PrevHash != prevHash {
			return VerifyResult{
				Error:     fmt.Sprintf("chain mismatch: expected prev_hash %s, got %s", prevHash, entry.PrevHash),
				ErrorLine: lineNum,
			}
		}

		recorded := entry.Hash
		entry.Hash = ""
		unhashed, err := json.Marshal(entry)
		if err != nil {
			return VerifyResult{
				Error:     fmt.Sprintf("re-marshal: %v", err),
				ErrorLine: lineNum,
			}
		}
		if computed := HashLine(unhashed); computed != recorded {
			return VerifyResult{
				Error:     fmt.Sprintf("entry hash mismatch: computed %s, recorded %s", computed, recorded),
				ErrorLine: lineNum,
			}
		}

		prevHash = recorded
	}

	if err := scanner.Err(); err != nil {
		return VerifyResult{Error: fmt.Sprintf("scan: %v", err)}
	}

	return VerifyResult{Valid: true, Lines: lineNum}
}
