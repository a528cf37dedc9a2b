package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"github.com/skills-gamification/internal/domain"
)

// Drill ids of the default academy and team libraries
var (
	academyDrills = []int64{1, 2, 3, 4, 5, 6}
	teamDrills    = []int64{101, 102, 103}
)

var athletePrefixes = []string{
	"Attack", "Middie", "Pole", "Goalie", "Fogo", "Lsm", "Crease", "Wing", "Point", "Slide",
}

func athleteID(idx int) string {
	return fmt.Sprintf("%s-%d", strings.ToLower(athletePrefixes[idx%len(athletePrefixes)]), idx/len(athletePrefixes)+1)
}

// randomSubmission builds a workout of one to four drills
func randomSubmission(userID string) domain.WorkoutSubmission {
	workoutType := domain.WorkoutSkillsAcademy
	pool := academyDrills
	if rand.Intn(100) < 25 {
		workoutType = domain.WorkoutTeamPractice
		pool = teamDrills
	}

	n := rand.Intn(min(4, len(pool))) + 1
	picked := rand.Perm(len(pool))[:n]
	ids := make([]int64, n)
	for i, p := range picked {
		ids[i] = pool[p]
	}

	duration := rand.Intn(45) + 15
	return domain.WorkoutSubmission{
		UserID:          userID,
		DrillIDs:        ids,
		WorkoutType:     workoutType,
		SessionMetadata: domain.SessionMetadata{DurationMinutes: &duration},
		RequestID:       uuid.NewString(),
	}
}

func main() {
	brokers := flag.String("brokers", "localhost:9094", "Kafka brokers (comma-separated)")
	topic := flag.String("topic", "workout-completions", "Kafka topic")
	totalAthletes := flag.Int("athletes", 200, "Number of simulated athletes")
	completionsPerSecond := flag.Int("rate", 20, "Workout completions per second")
	duration := flag.Duration("duration", 0, "Duration to run (0 = forever)")
	replayPercent := flag.Int("replay", 0, "Percent of messages that resend an earlier request id")
	flag.Parse()

	if *totalAthletes <= 0 || *completionsPerSecond <= 0 {
		log.Fatal("athletes and rate must be positive")
	}
	if *replayPercent < 0 || *replayPercent > 100 {
		log.Fatal("replay must be between 0 and 100")
	}
	brokerList := strings.Split(*brokers, ",")

	fmt.Println("Workout completion producer")
	fmt.Printf("  Brokers:          %s\n", *brokers)
	fmt.Printf("  Topic:            %s\n", *topic)
	fmt.Printf("  Athletes:         %d\n", *totalAthletes)
	fmt.Printf("  Completions/sec:  %d\n", *completionsPerSecond)
	fmt.Printf("  Replays:          %d%%\n", *replayPercent)
	fmt.Println()

	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForLocal
	config.Producer.Compression = sarama.CompressionSnappy
	config.Producer.Flush.Frequency = 100 * time.Millisecond
	config.Producer.Flush.Messages = 100
	config.Producer.Return.Successes = true
	config.Producer.Return.Errors = true

	producer, err := sarama.NewAsyncProducer(brokerList, config)
	if err != nil {
		log.Fatalf("Failed to create producer: %v", err)
	}

	var successCount, errorCount, sentCount, replayCount int64
	var previous *domain.WorkoutSubmission
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for range producer.Successes() {
			atomic.AddInt64(&successCount, 1)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		for err := range producer.Errors() {
			atomic.AddInt64(&errorCount, 1)
			log.Printf("Producer error: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	shutdown := func(reason string) {
		fmt.Printf("\n%s, shutting down...\n", reason)
		producer.AsyncClose()
		wg.Wait()
		fmt.Printf("Completed. Sent: %d, Errors: %d\n", atomic.LoadInt64(&successCount), atomic.LoadInt64(&errorCount))
	}

	ticker := time.NewTicker(time.Second / time.Duration(*completionsPerSecond))
	defer ticker.Stop()
	statsTicker := time.NewTicker(5 * time.Second)
	defer statsTicker.Stop()

	var endTime time.Time
	if *duration > 0 {
		endTime = time.Now().Add(*duration)
	}

	for {
		select {
		case <-sigChan:
			shutdown("Interrupted")
			return

		case <-ticker.C:
			if *duration > 0 && time.Now().After(endTime) {
				shutdown("Duration reached")
				return
			}

			sub := randomSubmission(athleteID(rand.Intn(*totalAthletes)))
			if previous != nil && rand.Intn(100) < *replayPercent {
				sub = *previous
				atomic.AddInt64(&replayCount, 1)
			}
			previous = &sub
			data, err := json.Marshal(sub)
			if err != nil {
				log.Printf("Failed to marshal message: %v", err)
				continue
			}
			// keyed by user so one athlete's workouts stay ordered
			producer.Input() <- &sarama.ProducerMessage{
				Topic: *topic,
				Key:   sarama.StringEncoder(sub.UserID),
				Value: sarama.ByteEncoder(data),
			}
			atomic.AddInt64(&sentCount, 1)

		case <-statsTicker.C:
			fmt.Printf("[%s] Produced: %d | Replayed: %d | Acked: %d | Errors: %d\n",
				time.Now().Format("15:04:05"),
				atomic.LoadInt64(&sentCount),
				atomic.LoadInt64(&replayCount),
				atomic.LoadInt64(&successCount),
				atomic.LoadInt64(&errorCount),
			)
		}
	}
}
