//go:build linux

package engine

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	seccomp "github.com/elastic/go-seccomp-bpf"
	"github.com/landlock-lsm/go-landlock/landlock"
	landlocksys "github.com/landlock-lsm/go-landlock/landlock/syscall"
	"golang.org/x/sys/unix"
)

// injectPayload is handed from the engine to the trampoline process.
type injectPayload struct {
	Simpleperf string   `json:"simpleperf"`
	Args       []string `json:"args"`
	WritePaths []string `json:"write_paths"`
}

func encodeInjectPayload(payload injectPayload) (string, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

func decodeInjectPayload(encoded string) (injectPayload, error) {
	var payload injectPayload

	if encoded == "" {
		return payload, errors.New("missing " + InternalInjectPayloadEnv)
	}

	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return payload, fmt.Errorf("decode payload: %w", err)
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return payload, fmt.Errorf("unmarshal payload: %w", err)
	}

	return payload, nil
}

// RunInternalInject confines the current process and execs simpleperf
// inject. It is reachable only through the InternalInjectCommand
// trampoline and does not return on success.
func RunInternalInject() (int, error) {
	payload, err := decodeInjectPayload(os.Getenv(InternalInjectPayloadEnv))
	if err != nil {
		return 1, err
	}
	if payload.Simpleperf == "" || len(payload.Args) == 0 {
		return 1, fmt.Errorf("internal inject payload has empty command")
	}

	cmdPath, err := resolveCommandPath(payload.Simpleperf)
	if err != nil {
		return 1, fmt.Errorf("resolve command %q: %w", payload.Simpleperf, err)
	}

	if err := unix.Prctl(unix.PR_SET_NO_NEW_PRIVS, 1, 0, 0, 0); err != nil {
		return 1, fmt.Errorf("set no_new_privs: %w", err)
	}

	if err := applyLandlock(payload.WritePaths); err != nil {
		return 1, fmt.Errorf("apply landlock: %w", err)
	}

	if err := applySeccomp(); err != nil {
		return 1, fmt.Errorf("apply seccomp: %w", err)
	}

	argv := append([]string{payload.Simpleperf}, payload.Args...)
	if err := syscall.Exec(cmdPath, argv, os.Environ()); err != nil {
		return 1, fmt.Errorf("exec %q: %w", cmdPath, err)
	}
	return 0, nil
}

// applyLandlock leaves the whole filesystem readable, since inject reads
// binaries from anywhere to symbolize them, and limits writes to writePaths.
func applyLandlock(writePaths []string) error {
	cfg, err := selectLandlockConfig()
	if err != nil {
		return err
	}

	if err := cfg.RestrictPaths(buildLandlockRules(writePaths)...); err != nil {
		if strings.Contains(err.Error(), "missing kernel Landlock support") ||
			strings.Contains(err.Error(), "landlock is not supported") {
			return fmt.Errorf("landlock unavailable on this kernel (%w)", err)
		}
		return err
	}
	return nil
}

func selectLandlockConfig() (landlock.Config, error) {
	abi, err := landlocksys.LandlockGetABIVersion()
	if err != nil {
		return landlock.Config{}, fmt.Errorf("landlock unavailable on this kernel (%w)", err)
	}

	switch {
	case abi >= 7:
		return landlock.V7, nil
	case abi == 6:
		return landlock.V6, nil
	case abi == 5:
		return landlock.V5, nil
	case abi == 4:
		return landlock.V4, nil
	case abi == 3:
		return landlock.V3, nil
	case abi == 2:
		return landlock.V2, nil
	case abi == 1:
		return landlock.V1, nil
	default:
		return landlock.Config{}, fmt.Errorf("landlock unavailable on this kernel (unsupported ABI v%d)", abi)
	}
}

func buildLandlockRules(writePaths []string) []landlock.Rule {
	rules := []landlock.Rule{landlock.RODirs("/")}

	appendWritable := func(path string) {
		target := nearestExistingPath(path)
		info, err := os.Stat(target)
		if err != nil {
			return
		}
		if info.IsDir() {
			rules = append(rules, landlock.RWDirs(target))
			return
		}
		rules = append(rules, landlock.RWFiles(target))
	}

	appendWritable("/dev/null")

	tmpDir := os.TempDir()
	if tmpDir != "" {
		if resolved, err := filepath.EvalSymlinks(tmpDir); err == nil {
			tmpDir = resolved
		}
		appendWritable(tmpDir)
	}

	for _, path := range writePaths {
		appendWritable(path)
	}
	return rules
}

func nearestExistingPath(path string) string {
	cleaned := filepath.Clean(path)
	for {
		if cleaned == "." || cleaned == "" {
			return "/"
		}
		if _, err := os.Stat(cleaned); err == nil {
			return cleaned
		}
		if cleaned == "/" {
			return "/"
		}
		cleaned = filepath.Dir(cleaned)
	}
}

// networkSyscalls are denied to the decoder; it only reads and writes files.
var networkSyscalls = []string{
	"socket", "socketpair", "connect", "bind",
	"listen", "accept", "accept4", "sendto",
	"sendmsg", "sendmmsg", "recvfrom", "recvmsg",
	"recvmmsg", "shutdown",
}

func applySeccomp() error {
	filter := seccomp.Filter{
		NoNewPrivs: false,
		Flag:       seccomp.FilterFlagTSync,
		Policy: seccomp.Policy{
			DefaultAction: seccomp.ActionAllow,
			Syscalls: []seccomp.SyscallGroup{{
				Names:  networkSyscalls,
				Action: seccomp.Action(uint32(seccomp.ActionErrno) | uint32(syscall.EPERM)),
			}},
		},
	}

	if err := seccomp.LoadFilter(filter); err != nil {
		if errors.Is(err, syscall.ENOSYS) || errors.Is(err, syscall.EINVAL) {
			return fmt.Errorf("seccomp unavailable on this kernel (%w)", err)
		}
		return err
	}
	return nil
}
