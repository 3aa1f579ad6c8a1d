package kafka

import "github.com/IBM/sarama"

// producerHeaderCarrier adapts outgoing record headers to a TextMapCarrier.
type producerHeaderCarrier []sarama.RecordHeader

func (c producerHeaderCarrier) Get(key string) string {
	for _, h := range c {
		if string(h.Key) == key {
			return string(h.Value)
		}
	}
	return ""
}

func (c *producerHeaderCarrier) Set(key, value string) {
	for i, h := range *c {
		if string(h.Key) == key {
			(*c)[i].Value = []byte(value)
			return
		}
	}
	*c = append(*c, sarama.RecordHeader{Key: []byte(key), Value: []byte(value)})
}

func (c producerHeaderCarrier) Keys() []string {
	out := make([]string, 0, len(c))
	for _, h := range c {
		out = append(out, string(h.Key))
	}
	return out
}

// consumerHeaderCarrier adapts consumed record headers to a TextMapCarrier.
type consumerHeaderCarrier []*sarama.RecordHeader

func (c consumerHeaderCarrier) Get(key string) string {
	for _, h := range c {
		if h != nil && string(h.Key) == key {
			return string(h.Value)
		}
	}
	return ""
}

func (c consumerHeaderCarrier) Set(string, string) {}

func (c consumerHeaderCarrier) Keys() []string {
	out := make([]string, 0, len(c))
	for _, h := range c {
		if h != nil {
			out = append(out, string(h.Key))
		}
	}
	return out
}
