package main

import (
	"fmt"
	"io"
	"log"
	"os"

	"github.com/Mirai3103/fib-bench/internal/fib"
)

// n cố định; benchmark không nhận tham số.
const n = 38

func run(w io.Writer) error {
	result, err := fib.Fib(n)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, result)
	return err
}

func main() {
	if err := run(os.Stdout); err != nil {
		log.Fatalf("fib(%d) failed: %v", n, err)
	}
}
