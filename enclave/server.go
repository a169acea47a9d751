package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/mdlayher/vsock"

	"github.com/cloudx-io/dutchauction/enclaveapi"
)

// EnclaveServer serves the auction host over vsock. One JSON request per
// connection, one JSON response back.
type EnclaveServer struct {
	port       uint32
	keyManager *KeyManager
	host       *AuctionHost
}

func NewEnclaveServer(port uint32) *EnclaveServer {
	return &EnclaveServer{port: port}
}

func (s *EnclaveServer) Start() error {
	host, err := NewAuctionHost()
	if err != nil {
		return fmt.Errorf("failed to initialize auction host: %w", err)
	}
	s.host = host
	s.keyManager = NewKeyManager(host.Engine())
	log.Printf("INFO: Auction host and key manager initialized")

	listener, err := vsock.Listen(s.port, nil)
	if err != nil {
		return fmt.Errorf("failed to create vsock listener: %w", err)
	}
	defer func() {
		if err := listener.Close(); err != nil {
			log.Printf("ERROR: Failed to close listener: %v", err)
		}
	}()

	log.Printf("INFO: TEE server listening on vsock port %d", s.port)

	maxWorkers, err := getRequiredEnvInt("ENCLAVE_MAX_WORKERS")
	if err != nil {
		return fmt.Errorf("failed to get max workers config: %w", err)
	}
	semaphore := make(chan struct{}, maxWorkers)

	log.Printf("INFO: Worker pool initialized with %d max concurrent workers", maxWorkers)

	for {
		conn, err := listener.Accept()
		if err != nil {
			log.Printf("ERROR: Failed to accept vsock connection: %v", err)
			continue
		}

		// Acquire worker slot - immediate rejection if pool full
		select {
		case semaphore <- struct{}{}:
			go func(c net.Conn) {
				defer func() { <-semaphore }() // Release worker slot
				s.handleConnection(c)
			}(conn)
		default:
			log.Printf("INFO: No workers available, rejecting connection (pool full)")
			if err := conn.Close(); err != nil {
				log.Printf("ERROR: Failed to close rejected connection: %v", err)
			}
		}
	}
}

func (s *EnclaveServer) handleConnection(conn net.Conn) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("ERROR: Panic recovered in handleConnection: %v", r)
		}
		if err := conn.Close(); err != nil {
			log.Printf("ERROR: Failed to close connection: %v", err)
		}
	}()

	_ = conn.SetReadDeadline(time.Now().Add(30 * time.Second))

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, conn); err != nil {
		log.Printf("ERROR: Failed to read request: %v", err)
		return
	}

	response := s.dispatch(buf.Bytes())

	encoder := json.NewEncoder(conn)
	if err := encoder.Encode(response); err != nil {
		log.Printf("ERROR: Failed to encode response: %v", err)
	}
}

// dispatch routes one raw JSON request to its handler and returns the
// response value to encode.
func (s *EnclaveServer) dispatch(raw []byte) any {
	var base enclaveapi.Request
	if err := json.Unmarshal(raw, &base); err != nil {
		log.Printf("ERROR: Failed to decode base request: %v", err)
		return enclaveapi.ErrorResponse{Type: "error", Message: fmt.Sprintf("malformed request: %v", err)}
	}

	log.Printf("INFO: Received request type: %s", base.Type)

	switch base.Type {
	case "ping":
		return map[string]any{
			"type":      "pong",
			"message":   "TEE server is healthy",
			"timestamp": time.Now().Unix(),
		}

	case "key_request":
		attester, err := getEnclaveAttester()
		if err != nil {
			log.Printf("ERROR: Key request failed: %v", err)
			return enclaveapi.ErrorResponse{Type: "error", Message: fmt.Sprintf("Failed to initialize TEE attester: %v", err)}
		}
		keyResp, err := HandleKeyRequest(attester, s.keyManager)
		if err != nil {
			log.Printf("ERROR: Key request failed: %v", err)
			return enclaveapi.ErrorResponse{Type: "error", Message: fmt.Sprintf("Key request failed: %v", err)}
		}
		return keyResp

	case "create_auction":
		var req enclaveapi.CreateAuctionRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			return enclaveapi.ErrorResponse{Type: "error", Message: fmt.Sprintf("malformed create_auction request: %v", err)}
		}
		return s.host.CreateAuction(req)

	case "mint":
		var req enclaveapi.MintRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			return enclaveapi.ErrorResponse{Type: "error", Message: fmt.Sprintf("malformed mint request: %v", err)}
		}
		return s.host.Mint(req)

	case "auction_op":
		var req enclaveapi.AuctionOpRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			return enclaveapi.ErrorResponse{Type: "error", Message: fmt.Sprintf("malformed auction_op request: %v", err)}
		}
		return s.host.HandleOp(req)

	case "status":
		var req enclaveapi.StatusRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			return enclaveapi.ErrorResponse{Type: "error", Message: fmt.Sprintf("malformed status request: %v", err)}
		}
		return s.host.Status(req)

	case "fulfill_reveals":
		var req enclaveapi.FulfillRevealsRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			return enclaveapi.ErrorResponse{Type: "error", Message: fmt.Sprintf("malformed fulfill_reveals request: %v", err)}
		}
		return s.host.FulfillReveals(req)

	default:
		return enclaveapi.ErrorResponse{Type: "error", Message: fmt.Sprintf("Unknown request type: %s", base.Type)}
	}
}

// Helper function for required environment variable parsing
func getRequiredEnvInt(key string) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return 0, fmt.Errorf("required environment variable %s is not set", key)
	}

	intValue, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %s (must be a valid integer)", key, value)
	}

	log.Printf("INFO: Using %s=%d from environment", key, intValue)
	return intValue, nil
}

func main() {
	port, err := getRequiredEnvInt("ENCLAVE_VSOCK_PORT")
	if err != nil {
		log.Fatalf("ERROR: %v", err)
	}
	server := NewEnclaveServer(uint32(port))
	log.Fatal(server.Start())
}
