package rpc

import (
	"fmt"
	"sync"

	"github.com/jhump/protoreflect/desc"
	"github.com/jhump/protoreflect/desc/protoparse"
	"google.golang.org/protobuf/types/descriptorpb"
)

const (
	SchemaFile  = "rol.proto"
	ServiceName = "rol.Evaluator"
)

// Schema is the wire contract of the remote evaluator. Failures to read or
// compile an expression travel in the error field; transport failures are
// gRPC status errors.
const Schema = `syntax = "proto3";

package rol;

message EvalRequest {
  string source = 1;
}

message EvalResponse {
  string value = 1;
  string kind = 2;
  string error = 3;
}

message ListingResponse {
  string ir = 1;
  string error = 2;
}

message StatsRequest {}

message StatsResponse {
  int64 live = 1;
  int64 bytes = 2;
  int64 functions = 3;
}

service Evaluator {
  rpc Eval(EvalRequest) returns (EvalResponse);
  rpc Listing(EvalRequest) returns (ListingResponse);
  rpc Stats(StatsRequest) returns (StatsResponse);
}
`

var (
	schemaOnce sync.Once
	schemaFD   *desc.FileDescriptor
	schemaErr  error
)

// Descriptor parses Schema once.
func Descriptor() (*desc.FileDescriptor, error) {
	schemaOnce.Do(func() {
		parser := protoparse.Parser{
			Accessor: protoparse.FileContentsFromMap(map[string]string{SchemaFile: Schema}),
		}
		fds, err := parser.ParseFiles(SchemaFile)
		if err != nil {
			schemaErr = fmt.Errorf("parse %s: %w", SchemaFile, err)
			return
		}
		schemaFD = fds[0]
	})
	return schemaFD, schemaErr
}

// DescriptorProto returns the compiled schema.
func DescriptorProto() (*descriptorpb.FileDescriptorProto, error) {
	fd, err := Descriptor()
	if err != nil {
		return nil, err
	}
	return fd.AsFileDescriptorProto(), nil
}

func service() (*desc.ServiceDescriptor, error) {
	fd, err := Descriptor()
	if err != nil {
		return nil, err
	}
	sd := fd.FindService(ServiceName)
	if sd == nil {
		return nil, fmt.Errorf("service %s not found in %s", ServiceName, SchemaFile)
	}
	return sd, nil
}

func method(name string) (*desc.MethodDescriptor, error) {
	sd, err := service()
	if err != nil {
		return nil, err
	}
	md := sd.FindMethodByName(name)
	if md == nil {
		return nil, fmt.Errorf("method %s not found in %s", name, ServiceName)
	}
	return md, nil
}

func methodPath(name string) string { return "/" + ServiceName + "/" + name }
