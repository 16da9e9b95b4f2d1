package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"avobot-go/internal/autoprod"
	"avobot-go/internal/journal"
	"avobot-go/internal/market"
	"avobot-go/internal/trading"
)

const defaultAutoInterval = 10 * time.Second

type console struct {
	client    *trading.Client
	scheduler *autoprod.Scheduler
	fills     *journal.Ledger
	in        io.Reader
	out       io.Writer
}

func newConsole(client *trading.Client, scheduler *autoprod.Scheduler, fills *journal.Ledger, in io.Reader, out io.Writer) *console {
	return &console{client: client, scheduler: scheduler, fills: fills, in: in, out: out}
}

// Run reads commands until exit, end of input or ctx cancellation.
func (c *console) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(c.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	fmt.Fprintln(c.out, "=== Avobot Console === (help for commands)")
	for {
		fmt.Fprint(c.out, "> ")
		select {
		case <-ctx.Done():
			fmt.Fprintln(c.out)
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if c.exec(line) {
				return nil
			}
		}
	}
}

// exec runs one command line and reports whether the console should exit.
func (c *console) exec(line string) bool {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return false
	}
	var err error
	switch strings.ToLower(parts[0]) {
	case "help":
		c.help()
	case "status":
		c.status()
	case "inventario":
		c.inventory()
	case "precios":
		c.prices()
	case "comprar":
		err = c.order(parts, true)
	case "vender":
		err = c.order(parts, false)
	case "producir":
		err = c.produce(parts)
	case "ofertas":
		c.offers()
	case "aceptar":
		err = c.answer(parts, true)
	case "rechazar":
		err = c.answer(parts, false)
	case "fills":
		c.history(parts)
	case "snapshot":
		err = c.snapshot(parts)
	case "resync":
		err = c.client.Resync()
	case "auto":
		err = c.auto(parts)
	case "exit", "salir":
		return true
	default:
		fmt.Fprintln(c.out, "unknown command, type 'help'")
	}
	if err != nil {
		fmt.Fprintf(c.out, "error: %v\n", err)
	}
	return false
}

func (c *console) help() {
	fmt.Fprint(c.out, `commands:
  status                                balance, inventory value and P&L
  inventario                            current inventory
  precios                               last known prices
  comprar <prod> <qty> [msg]            send a buy order
  vender <prod> <qty> [msg]             send a sell order
  producir <prod> <basico|premium>      run one production
  ofertas                               pending offers
  aceptar <offerId>                     accept an offer
  rechazar <offerId>                    reject an offer
  fills [reset]                         fills settled this session, or clear them
  snapshot save [path]                  save the account state
  snapshot load <path>                  restore the account state
  resync                                ask the exchange to resend login data
  auto start <prod> <basico|premium> [secs]
  auto stop | auto status
  exit
`)
}

func (c *console) status() {
	store := c.client.Store()
	balance, value := store.Balance(), store.InventoryValue()
	species, team := c.client.Identity()
	fmt.Fprintf(c.out, "team: %s | species: %s\n", team, species)
	fmt.Fprintf(c.out, "balance: %.2f\n", balance)
	fmt.Fprintf(c.out, "inventory value: %.2f\n", value)
	fmt.Fprintf(c.out, "equity: %.2f\n", balance+value)
	fmt.Fprintf(c.out, "P&L: %.2f%%\n", store.ProfitAndLoss())
	if c.client.Reconnecting() {
		fmt.Fprintln(c.out, "reconnecting...")
	}
}

func (c *console) inventory() {
	inv := c.client.Store().Inventory()
	if len(inv) == 0 {
		fmt.Fprintln(c.out, "inventory empty")
		return
	}
	for _, p := range market.SortedProducts(inv) {
		fmt.Fprintf(c.out, "- %s: %d\n", p, inv[p])
	}
}

func (c *console) prices() {
	prices := c.client.Store().Prices()
	if len(prices) == 0 {
		fmt.Fprintln(c.out, "no tickers yet")
		return
	}
	for _, p := range market.SortedProducts(prices) {
		fmt.Fprintf(c.out, "- %s: %.2f\n", p, prices[p])
	}
}

func (c *console) order(parts []string, buy bool) error {
	verb := "vender"
	if buy {
		verb = "comprar"
	}
	if len(parts) < 3 {
		fmt.Fprintf(c.out, "usage: %s <prod> <qty> [msg]\n", verb)
		return nil
	}
	qty, err := strconv.Atoi(parts[2])
	if err != nil {
		return fmt.Errorf("invalid quantity %q", parts[2])
	}
	message := strings.Join(parts[3:], " ")

	send := c.client.Sell
	if buy {
		send = c.client.Buy
	}
	order, err := send(parts[1], qty, message)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "%s %s x%d sent (%s)\n", order.Side, order.Product, order.Qty, order.ClientOrderID)
	return nil
}

func (c *console) produce(parts []string) error {
	if len(parts) < 3 {
		fmt.Fprintln(c.out, "usage: producir <prod> <basico|premium>")
		return nil
	}
	premium := strings.EqualFold(parts[2], "premium")
	units, err := c.client.Produce(parts[1], premium)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "produced %d units of %s\n", units, market.ParseProduct(parts[1]))
	return nil
}

func (c *console) offers() {
	pending := c.client.PendingOffers()
	if len(pending) == 0 {
		fmt.Fprintln(c.out, "no pending offers")
		return
	}
	for _, o := range pending {
		buyer := o.Buyer
		if buyer == "" {
			buyer = "-"
		}
		fmt.Fprintf(c.out, "- %s | %s x%d @ %.2f (buyer: %s)\n", o.OfferID, o.Product, o.QuantityRequested, o.MaxPrice, buyer)
	}
}

func (c *console) answer(parts []string, accept bool) error {
	if len(parts) < 2 {
		fmt.Fprintln(c.out, "usage: aceptar|rechazar <offerId>")
		return nil
	}
	return c.client.AcceptOffer(parts[1], accept)
}

func (c *console) history(parts []string) {
	if len(parts) > 1 && strings.EqualFold(parts[1], "reset") {
		c.fills.Reset()
		fmt.Fprintln(c.out, "fill history cleared")
		return
	}
	entries := c.fills.Snapshot()
	if len(entries) == 0 {
		fmt.Fprintln(c.out, "no fills yet")
		return
	}
	for _, e := range entries {
		fmt.Fprintf(c.out, "- %s %s %s x%d @ %.2f\n", e.Ts.Format(time.TimeOnly), e.Side, e.Product, e.Quantity, e.Price)
	}
}

func (c *console) snapshot(parts []string) error {
	if len(parts) < 2 {
		fmt.Fprintln(c.out, "usage: snapshot save [path] | snapshot load <path>")
		return nil
	}
	switch strings.ToLower(parts[1]) {
	case "save":
		dest := ""
		if len(parts) > 2 {
			dest = parts[2]
		}
		path, err := c.client.SaveSnapshot(dest)
		if err != nil {
			return err
		}
		fmt.Fprintf(c.out, "snapshot saved to %s\n", path)
	case "load":
		if len(parts) < 3 {
			fmt.Fprintln(c.out, "usage: snapshot load <path>")
			return nil
		}
		if err := c.client.LoadSnapshot(parts[2]); err != nil {
			return err
		}
		fmt.Fprintf(c.out, "snapshot loaded from %s\n", parts[2])
	default:
		fmt.Fprintln(c.out, "usage: snapshot save [path] | snapshot load <path>")
	}
	return nil
}

func (c *console) auto(parts []string) error {
	if len(parts) < 2 {
		fmt.Fprintln(c.out, "usage: auto start|stop|status")
		return nil
	}
	switch strings.ToLower(parts[1]) {
	case "start":
		if len(parts) < 4 {
			fmt.Fprintln(c.out, "usage: auto start <prod> <basico|premium> [secs]")
			return nil
		}
		interval := defaultAutoInterval
		if len(parts) > 4 {
			secs, err := strconv.ParseFloat(parts[4], 64)
			if err != nil {
				return fmt.Errorf("invalid interval %q", parts[4])
			}
			interval = time.Duration(secs * float64(time.Second))
		}
		if err := c.scheduler.Start(parts[2], strings.EqualFold(parts[3], "premium"), interval); err != nil {
			return err
		}
		fmt.Fprintln(c.out, "auto production started")
	case "stop":
		if c.scheduler.Stop() {
			fmt.Fprintln(c.out, "auto production stopped")
		} else {
			fmt.Fprintln(c.out, "auto production was not running")
		}
	case "status":
		st := c.scheduler.Status()
		if !st.Running {
			fmt.Fprintln(c.out, "auto production is stopped")
			return nil
		}
		mode := "basico"
		if st.Premium {
			mode = "premium"
		}
		fmt.Fprintf(c.out, "auto production: %s (%s) every %s, cycles=%d\n", st.Product, mode, st.Interval, st.Cycles)
		if st.LastError != "" {
			fmt.Fprintf(c.out, "last error: %s\n", st.LastError)
		}
	default:
		fmt.Fprintln(c.out, "usage: auto start|stop|status")
	}
	return nil
}
