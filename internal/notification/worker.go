// Package notification mails season ticket receipts from a pool of workers.
package notification

import (
	"context"
	"fmt"
	"log"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"parking-access-backend/config"
	"parking-access-backend/internal/model"
)

// queueDepth is the number of pending receipts buffered per worker.
const queueDepth = 32

// Mailer sends one email. *sendgrid.Client satisfies it.
type Mailer interface {
	Send(email *mail.SGMailV3) (*rest.Response, error)
}

// ContractSource loads a contract with its vehicle, slot, customer and payment.
type ContractSource interface {
	GetContract(ctx context.Context, id string) (*model.Contract, error)
}

// WorkerPool manages a pool of workers for sending receipts.
type WorkerPool struct {
	size      int
	jobs      chan string
	contracts ContractSource
	from      *mail.Email
	mailer    Mailer
}

// NewWorkerPool creates a new worker pool backed by SendGrid.
func NewWorkerPool(cfg *config.NotificationConfig, contracts ContractSource) *WorkerPool {
	size := cfg.WorkerPoolSize
	if size <= 0 {
		size = 1
	}
	return &WorkerPool{
		size:      size,
		jobs:      make(chan string, size*queueDepth),
		contracts: contracts,
		from:      mail.NewEmail(cfg.FromName, cfg.FromEmail),
		mailer:    sendgrid.NewSendClient(cfg.SendGridAPIKey),
	}
}

// Start launches the worker goroutines.
func (wp *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < wp.size; i++ {
		go wp.worker(ctx, i)
	}
}

func (wp *WorkerPool) worker(ctx context.Context, id int) {
	log.Printf("Receipt worker %d started", id)
	for {
		select {
		case contractID := <-wp.jobs:
			wp.sendReceipt(ctx, contractID)
		case <-ctx.Done():
			log.Printf("Receipt worker %d shutting down", id)
			return
		}
	}
}

// Dispatch queues a receipt for contractID. It never blocks; when the queue
// is full the receipt is dropped and logged.
func (wp *WorkerPool) Dispatch(contractID string) {
	select {
	case wp.jobs <- contractID:
	default:
		log.Printf("Receipt queue full, dropping receipt for contract %s", contractID)
	}
}

// Jobs returns the jobs channel for testing.
func (wp *WorkerPool) Jobs() chan string {
	return wp.jobs
}

func (wp *WorkerPool) sendReceipt(ctx context.Context, contractID string) {
	c, err := wp.contracts.GetContract(ctx, contractID)
	if err != nil {
		log.Printf("Error fetching contract %s for receipt: %v", contractID, err)
		return
	}
	if c.Customer == nil || c.Customer.Email == "" {
		log.Printf("Contract %s has no customer email, skipping receipt", contractID)
		return
	}

	to := mail.NewEmail(c.Customer.FullName, c.Customer.Email)
	subject, plain, html := receipt(c)
	resp, err := wp.mailer.Send(mail.NewSingleEmail(wp.from, subject, to, plain, html))
	if err != nil {
		log.Printf("Error sending receipt for contract %s to %s: %v", contractID, c.Customer.Email, err)
		return
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Printf("SendGrid rejected receipt for contract %s. Status: %d, Body: %s", contractID, resp.StatusCode, resp.Body)
		return
	}
	log.Printf("Receipt for contract %s sent to %s", contractID, c.Customer.Email)
}

func receipt(c *model.Contract) (subject, plain, html string) {
	plate := ""
	if c.Vehicle.ID != 0 {
		plate = c.Vehicle.LicensePlate
	}
	slot := ""
	if c.Slot != nil {
		slot = c.Slot.Label()
	}
	from := c.ValidFrom.Format("2006-01-02 15:04")
	to := c.ValidTo.Format("2006-01-02 15:04")
	price := c.Price.StringFixed(2)

	subject = fmt.Sprintf("Season ticket %s", plate)
	plain = fmt.Sprintf("Season ticket for %s\nSlot: %s\nValid: %s to %s (UTC)\nPrice: %s\nReference: %s\n",
		plate, slot, from, to, price, c.ID)
	html = fmt.Sprintf("<p>Season ticket for <strong>%s</strong></p><ul><li>Slot: %s</li><li>Valid: %s to %s (UTC)</li><li>Price: %s</li><li>Reference: %s</li></ul>",
		plate, slot, from, to, price, c.ID)
	return subject, plain, html
}
