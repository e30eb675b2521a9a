// Command instructctl sends instruction codes to a running cabin dispatcher
// over its JSON-RPC API and prints each reply.
//
//	instructctl -url http://localhost:8080/instruction_api -source voice 0302 "0002[公司]"
//	instructctl -method emergency
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type rpcRequest struct {
	JSONRPC string   `json:"jsonrpc"`
	Method  string   `json:"method"`
	Params  []string `json:"params,omitempty"`
	ID      string   `json:"id"`
}

type rpcReply struct {
	Result json.RawMessage `json:"result,omitempty"`
	Error  *struct {
		Code    int         `json:"code"`
		Message string      `json:"message"`
		Data    interface{} `json:"data,omitempty"`
	} `json:"error,omitempty"`
	ID interface{} `json:"id"`
}

func main() {
	log := logrus.New()
	log.SetOutput(os.Stderr)
	if err := run(context.Background(), os.Args[1:], os.Stdout, log); err != nil {
		log.WithError(err).Error("instructctl failed")
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer, log logrus.FieldLogger) error {
	fs := flag.NewFlagSet("instructctl", flag.ContinueOnError)
	url := fs.String("url", "http://localhost:8080/instruction_api", "JSON-RPC endpoint")
	source := fs.String("source", "api", "source reported with each instruction")
	method := fs.String("method", "instruction", "method to call; codes are only sent with instruction and parse")
	timeout := fs.Duration("timeout", 5*time.Second, "per-request timeout")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client := &http.Client{Timeout: *timeout}

	switch *method {
	case "instruction", "parse":
		if fs.NArg() == 0 {
			return errors.New("no instruction codes given")
		}
		for _, code := range fs.Args() {
			params := []string{code}
			if *method == "instruction" {
				params = append(params, *source)
			}
			log.WithFields(logrus.Fields{"code": code, "method": *method}).Debug("Sending instruction")
			if err := call(ctx, client, *url, *method, params, out); err != nil {
				return fmt.Errorf("%s: %w", code, err)
			}
		}
		return nil
	default:
		return call(ctx, client, *url, *method, fs.Args(), out)
	}
}

// call posts one request and prints "<label> <result or error>"
func call(ctx context.Context, client *http.Client, url, method string, params []string, out io.Writer) error {
	body, err := json.Marshal(rpcRequest{JSONRPC: "2.0", Method: method, Params: params, ID: uuid.NewString()})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var reply rpcReply
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return fmt.Errorf("bad reply (HTTP %d): %w", resp.StatusCode, err)
	}

	label := method
	if len(params) > 0 {
		label = params[0]
	}
	if reply.Error != nil {
		fmt.Fprintf(out, "%s error %d %s", label, reply.Error.Code, reply.Error.Message)
		if reply.Error.Data != nil {
			fmt.Fprintf(out, " (%v)", reply.Error.Data)
		}
		fmt.Fprintln(out)
		return nil
	}
	fmt.Fprintf(out, "%s %s\n", label, reply.Result)
	return nil
}
