// ABOUTME: Minimal fake agent for testing the supervisor — prints, sleeps, burns memory, exits.
// ABOUTME: Usage: fake-agent [task-id] [-sleep 0s] [-burn-mb 0] [-exit-code 0] [-echo-stdin]

package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"time"
)

func main() {
	sleep := flag.Duration("sleep", 0, "how long to stay alive before exiting")
	burnMB := flag.Int("burn-mb", 0, "megabytes of memory to allocate and hold")
	exitCode := flag.Int("exit-code", 0, "process exit code")
	echoStdin := flag.Bool("echo-stdin", false, "copy stdin lines to stdout until EOF")
	toStderr := flag.Bool("stderr", false, "write output to stderr instead of stdout")
	flag.Parse()

	out := os.Stdout
	if *toStderr {
		out = os.Stderr
	}

	for _, arg := range flag.Args() {
		fmt.Fprintln(out, arg)
	}

	// The slice must stay reachable or the allocation gets collected before
	// the monitor can observe it.
	var ballast []byte
	if *burnMB > 0 {
		ballast = make([]byte, *burnMB<<20)
		for i := range ballast {
			ballast[i] = byte(i)
		}
		fmt.Fprintf(out, "holding %d MB\n", *burnMB)
	}

	if *echoStdin {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			fmt.Fprintln(out, scanner.Text())
		}
	}

	if *sleep > 0 {
		time.Sleep(*sleep)
	}

	_ = ballast
	os.Exit(*exitCode)
}
