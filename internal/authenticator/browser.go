package authenticator

import (
	"fmt"
	"math/rand/v2"
	"net"
	"os/exec"
	"runtime"
	"strconv"
)

const (
	minPort      = 10000
	maxPort      = 30000
	portAttempts = 100
)

// listenLoopback binds a random free port on 127.0.0.1.
func listenLoopback() (net.Listener, error) {
	var lastErr error
	for i := 0; i < portAttempts; i++ {
		port := minPort + rand.IntN(maxPort-minPort+1)
		ln, err := net.Listen("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))
		if err == nil {
			return ln, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("can not find free port on loopback interface: %w", lastErr)
}

func openBrowser(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	if err := cmd.Start(); err != nil {
		return err
	}
	go func() { _ = cmd.Wait() }()
	return nil
}
