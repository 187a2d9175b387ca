package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"syscall"

	flags "github.com/jessevdk/go-flags"
	"github.com/rs/zerolog"
	"github.com/streadway/amqp"
	"github.com/vmihailenco/msgpack"

	"github.com/sean-gilliam/sharedconn"
	"github.com/sean-gilliam/sharedconn/amqpconn"
)

// Options is command line options.
type Options struct {
	ClientID  string `short:"c" long:"client-id" description:"Client id assigned to the shared connection"`
	RabbitURL string `short:"U" long:"amqp-url" description:"RabbitMQ connection URL" required:"true"`
	LogLevel  string `short:"l" long:"log-level" description:"Logging level" default:"info" choice:"info" choice:"debug" choice:"warn" choice:"error"` //nolint
	Queue     string `short:"q" long:"queue" description:"Queue name" required:"true"`
	Reconnect bool   `long:"reconnect" description:"Recreate the connection when the server drops it"`
}

type pubCommand struct {
	Format string `long:"format" description:"Message format" default:"json" choice:"json" choice:"msgpack" choice:"text"` //nolint
	Data   string `short:"D" long:"data" description:"Message payload"`
	Count  int    `short:"n" long:"count" description:"How many copies to publish" default:"1"`
}

type watchCommand struct {
}

var opts Options
var logger zerolog.Logger

func newManager() (*sharedconn.ConnectionManager, error) {
	u, err := url.Parse(opts.RabbitURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse url %q: %v", opts.RabbitURL, err)
	}
	level, err := zerolog.ParseLevel(opts.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).Level(level).With().Timestamp().Logger()
	factory := amqpconn.NewFactory(u, amqpconn.Config{ConnectionName: opts.ClientID}, logger)
	mgr := sharedconn.New(sharedconn.Config{
		Factory:              factory,
		ClientID:             opts.ClientID,
		ReconnectOnException: opts.Reconnect,
		ExceptionListener: sharedconn.ExceptionListenerFunc(func(err error) {
			logger.Warn().Err(err).Msg("broker reported a connection error")
		}),
	}, logger)
	if err := mgr.Validate(); err != nil {
		return nil, err
	}
	return mgr, nil
}

func encode(format, data string) ([]byte, string, error) {
	switch format {
	case "json":
		var obj interface{}
		if err := json.Unmarshal([]byte(data), &obj); err != nil {
			return nil, "", fmt.Errorf("failed to unmarshal %q to json: %v", data, err)
		}
		body, err := json.Marshal(obj)
		return body, "application/json", err
	case "msgpack":
		body, err := msgpack.Marshal(data)
		return body, "application/msgpack", err
	default:
		return []byte(data), "text/plain", nil
	}
}

// Execute pub command.
func (c *pubCommand) Execute([]string) error {
	mgr, err := newManager()
	if err != nil {
		return err
	}
	defer mgr.Close()

	conn, err := mgr.Connection()
	if err != nil {
		return err
	}
	session, err := conn.CreateSession(sharedconn.AutoAcknowledge)
	if err != nil {
		return err
	}
	defer session.Close()

	amqpSession := session.(*amqpconn.Session)
	if _, err := amqpSession.QueueDeclare(opts.Queue, false, false, false, false, nil); err != nil {
		return err
	}
	body, contentType, err := encode(c.Format, c.Data)
	if err != nil {
		return err
	}
	for i := 0; i < c.Count; i++ {
		err := amqpSession.Publish("", opts.Queue, false, amqp.Publishing{Body: body, ContentType: contentType})
		if err != nil {
			logger.Error().Err(err).Str("queue", opts.Queue).Msg("failed to publish message")
			return err
		}
	}
	logger.Info().Str("queue", opts.Queue).Int("count", c.Count).Msg("successfully published")
	return nil
}

// Execute watch command.
func (c *watchCommand) Execute([]string) error {
	mgr, err := newManager()
	if err != nil {
		return err
	}
	defer mgr.Close()

	conn, err := mgr.Connection()
	if err != nil {
		return err
	}
	session, err := conn.CreateSession(sharedconn.AutoAcknowledge)
	if err != nil {
		return err
	}
	defer session.Close()

	fmt.Println("========================\nWatching queue...\n- Ctrl+C to cancel\n========================")
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		ctrlc := make(chan os.Signal, 1)
		signal.Notify(ctrlc, os.Interrupt, syscall.SIGTERM)
		<-ctrlc
		cancel()
	}()
	_, err = session.(*amqpconn.Session).Consume(ctx, opts.Queue, func(d *amqp.Delivery) bool {
		logger.Info().Str("queue", opts.Queue).Str("body", string(d.Body)).Msg("received message")
		return true
	})
	return err
}

func main() {
	p := flags.NewParser(&opts, flags.Default)
	_, _ = p.AddCommand("pub", "Publish to a queue over the shared connection", "", &pubCommand{})
	_, _ = p.AddCommand("watch", "Consume a queue over the shared connection", "", &watchCommand{})
	_, err := p.Parse()
	if err != nil {
		fmt.Println("failed to parse arguments", err)
		p.WriteHelp(os.Stdout)
		os.Exit(3)
	}
}
