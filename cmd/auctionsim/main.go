// auctionsim plays the auction-server side of the wire protocol for
// development: it accepts one draftwire client, relays lines typed on
// stdin to it, and prints whatever the client sends back. With --seed it
// first emits a small scripted auction schedule.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"math/rand"
	"net"
	"os"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/draftwire/draftwire/internal/models"
	"github.com/draftwire/draftwire/internal/protocol"
)

func main() {
	addr := flag.String("addr", ":1300", "listen address")
	draftID := flag.String("draft", "1", "draft id used by --seed")
	seed := flag.Bool("seed", false, "emit a scripted auction schedule on connect")
	flag.Parse()

	ln, err := net.Listen("tcp", *addr)
	if err != nil {
		log.Fatal().Err(err).Str("addr", *addr).Msg("failed to listen")
	}
	log.Info().Str("addr", *addr).Msg("waiting for client")

	conn, err := ln.Accept()
	if err != nil {
		log.Fatal().Err(err).Msg("accept failed")
	}
	log.Info().Str("remote", conn.RemoteAddr().String()).Msg("client connected")

	go func() {
		scanner := bufio.NewScanner(conn)
		for scanner.Scan() {
			fmt.Printf("<<< %s\n", scanner.Text())
		}
		log.Info().Msg("client disconnected")
		os.Exit(0)
	}()

	if *seed {
		for _, line := range seedSchedule(*draftID) {
			fmt.Printf(">>> %s", line)
			if _, err := conn.Write([]byte(line)); err != nil {
				log.Fatal().Err(err).Msg("seed write failed")
			}
		}
	}

	stdin := bufio.NewScanner(os.Stdin)
	fmt.Print("jack >>> ")
	for stdin.Scan() {
		line := strings.TrimSpace(stdin.Text())
		if line != "" {
			if _, err := conn.Write([]byte(line + "\n")); err != nil {
				log.Fatal().Err(err).Msg("write failed")
			}
		}
		fmt.Print("jack >>> ")
	}
}

// seedSchedule builds a bidder acknowledgment and a short auction
// schedule with random positions and values.
func seedSchedule(draftID string) []string {
	lines := []string{}
	for i := 1; i <= 2; i++ {
		line, _ := protocol.Encode("bidder", map[string]string{
			"draft":  draftID,
			"name":   fmt.Sprintf("Manager%d", i),
			"budget": "200",
		})
		lines = append(lines, line)
	}
	for i := 1; i <= 10; i++ {
		pos := models.Positions[rand.Intn(len(models.Positions))]
		line, _ := protocol.Encode("auction", map[string]string{
			"draft":     draftID,
			"auctionId": fmt.Sprintf("%d", i),
			"order":     fmt.Sprintf("%d", i),
			"name":      fmt.Sprintf("Player%d", i),
			"position":  string(pos),
			"estValue":  fmt.Sprintf("%d", rand.Intn(50)+1),
		})
		lines = append(lines, line)
	}
	return lines
}
