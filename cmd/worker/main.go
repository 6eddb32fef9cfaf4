package main

import (
	"context"
	"encoding/json"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/lifecoachhq/coachapi/internal/ai"
	"github.com/lifecoachhq/coachapi/internal/chat"
	"github.com/lifecoachhq/coachapi/internal/config"
	"github.com/lifecoachhq/coachapi/internal/db"
	"github.com/lifecoachhq/coachapi/internal/sqlexec"
	"github.com/lifecoachhq/coachapi/internal/store/redisstore"
)

type jobMsg struct {
	JobID string `json:"job_id"`
}

func workerConcurrency() int {
	v := os.Getenv("WORKER_CONCURRENCY")
	if v == "" {
		return 2
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 2
	}
	if n > 50 {
		return 50
	}
	return n
}

func main() {
	cfg := config.Load()

	gdb := db.Connect(cfg.DBDSN)
	repo := chat.NewRepo(gdb)

	rds := redisstore.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	defer rds.Close()

	reg := ai.NewRegistry()
	reg.Register("ollama", func(ctx context.Context) (ai.Provider, error) {
		_ = ctx
		return ai.NewOllamaProvider(cfg.OllamaBaseURL), nil
	})
	reg.Register("openrouter", func(ctx context.Context) (ai.Provider, error) {
		_ = ctx
		return ai.NewOpenRouterProvider(
			cfg.OpenRouterBaseURL,
			cfg.OpenRouterAPIKey,
			cfg.OpenRouterSiteURL,
			cfg.OpenRouterAppName,
		), nil
	})
	provider, err := reg.Get(context.Background(), cfg.AIProvider)
	if err != nil {
		log.Fatalf("ai provider: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	engine := ai.NewEngine(provider, sqlexec.NewGormExecutor(gdb), logger)
	svc := chat.NewService(repo, engine, rds, cfg.ChatHistorySize)

	conn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		log.Fatalf("rabbit dial: %v", err)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		log.Fatalf("rabbit channel: %v", err)
	}
	defer ch.Close()

	// Declaration must match the publisher's topology exactly.
	if _, err := ch.QueueDeclare(cfg.RabbitQueue, true, false, false, false, amqp.Table{
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": cfg.RabbitQueue + ".dlq",
	}); err != nil {
		log.Fatalf("queue declare: %v", err)
	}

	concurrency := workerConcurrency()
	if err := ch.Qos(concurrency, 0, false); err != nil {
		log.Fatalf("qos: %v", err)
	}

	msgs, err := ch.Consume(cfg.RabbitQueue, "", false, false, false, false, nil)
	if err != nil {
		log.Fatalf("consume: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Printf("worker started, queue=%s concurrency=%d", cfg.RabbitQueue, concurrency)

	jobs := make(chan amqp.Delivery, concurrency*2)

	var wg sync.WaitGroup
	wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go func(workerID int) {
			defer wg.Done()
			for d := range jobs {
				var m jobMsg
				if err := json.Unmarshal(d.Body, &m); err != nil || m.JobID == "" {
					log.Printf("worker=%d bad message: %v", workerID, err)
					_ = d.Nack(false, false)
					continue
				}

				start := time.Now()
				if err := handleJob(ctx, svc, repo, m.JobID); err != nil {
					log.Printf("worker=%d job %s failed cost=%s err=%v", workerID, m.JobID, time.Since(start), err)
					_ = d.Nack(false, false)
					continue
				}

				if err := d.Ack(false); err != nil {
					log.Printf("worker=%d ack failed job=%s err=%v", workerID, m.JobID, err)
				}
			}
		}(i)
	}

	for {
		select {
		case <-ctx.Done():
			log.Printf("worker shutting down")
			close(jobs)
			wg.Wait()
			return

		case d, ok := <-msgs:
			if !ok {
				log.Printf("delivery channel closed")
				time.Sleep(1 * time.Second)
				continue
			}
			jobs <- d
		}
	}
}

func handleJob(ctx context.Context, svc *chat.Service, repo *chat.Repo, jobID string) error {
	start := time.Now()

	_ = repo.UpdateJobStatusRunning(ctx, jobID)

	j, err := repo.GetJobByID(ctx, jobID)
	if err != nil {
		return err
	}

	_, assistantMsgID, err := svc.GenerateAssistantReplyAndInsert(ctx, j.UserID, j.ThreadID)
	if err != nil {
		_ = repo.MarkJobFailed(ctx, jobID, err.Error())
		return err
	}

	if err := repo.MarkJobSucceeded(ctx, jobID, assistantMsgID); err != nil {
		return err
	}

	if total := time.Since(start); total > 2*time.Second {
		log.Printf("job_timing job=%s total=%s", jobID, total)
	}
	return nil
}
