package internal

import (
	"strings"

	"github.com/twmb/franz-go/pkg/kgo"
)

func newKafkaClient(brokers string) (*kgo.Client, error) {
	if brokers == "" {
		return nil, nil
	}

	opts := []kgo.Opt{
		kgo.SeedBrokers(strings.Split(brokers, ",")...),
	}

	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, err
	}

	return client, nil
}
