package config

const (
	// TopicBuild is the NSQ topic for queued knowledge base builds.
	TopicBuild = "kb.build"

	// ChannelBuild is the consumer channel shared by build workers.
	ChannelBuild = "kb-builder"
)
