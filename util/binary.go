package util

import (
	"encoding/binary"
	"math"
	"reflect"

	"github.com/pkg/errors"
)

type Datatype int

const (
	DatatypeByte Datatype = iota
	DatatypeInt32
	DatatypeFloat32
	DatatypeFloat64
)

// Width returns the number of bytes a value of this type occupies.
func (d Datatype) Width() int {
	switch d {
	case DatatypeByte:
		return 1
	case DatatypeInt32, DatatypeFloat32:
		return 4
	case DatatypeFloat64:
		return 8
	}
	return 0
}

// BinaryItem writes and reads one part of an object. Objects are structs, Read needs a pointer to a struct.
type BinaryItem interface {
	Size(object any) (int, error)
	Write(object any, data []byte, index int) (int, error)
	Read(object any, data []byte, index int) (int, error)
}

type BinarySchema struct {
	Items []BinaryItem // All items of this object schema. They are written and read in the given order.
}

// Size returns the number of bytes Write needs for the object.
func (b *BinarySchema) Size(object any) (int, error) {
	size := 0
	for _, item := range b.Items {
		itemSize, err := item.Size(object)
		if err != nil {
			return -1, err
		}
		size += itemSize
	}
	return size, nil
}

func (b *BinarySchema) Write(object any, data []byte, index int) (int, error) {
	var err error

	for _, item := range b.Items {
		index, err = item.Write(object, data, index)
		if err != nil {
			return -1, err
		}
	}

	return index, nil
}

func (b *BinarySchema) Read(object any, data []byte, index int) (int, error) {
	var err error

	for _, item := range b.Items {
		index, err = item.Read(object, data, index)
		if err != nil {
			return -1, err
		}
	}

	return index, nil
}

// Marshal allocates a buffer of the right size and writes the object into it.
func (b *BinarySchema) Marshal(object any) ([]byte, error) {
	size, err := b.Size(object)
	if err != nil {
		return nil, err
	}

	data := make([]byte, size)
	_, err = b.Write(object, data, 0)
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Unmarshal reads the object from the data, which must be consumed completely.
func (b *BinarySchema) Unmarshal(object any, data []byte) error {
	index, err := b.Read(object, data, 0)
	if err != nil {
		return err
	}
	if index != len(data) {
		return errors.Errorf("Read %d bytes but data contains %d bytes", index, len(data))
	}
	return nil
}

type BinaryDataItem struct {
	FieldName  string   // Name of the golang struct field.
	BinaryType Datatype // Type this field should be stored to. This has to be compatible with the FieldType.
}

func (b *BinaryDataItem) Size(any) (int, error) {
	return b.BinaryType.Width(), nil
}

func (b *BinaryDataItem) Write(object any, data []byte, index int) (int, error) {
	field, err := fieldOf(object, b.FieldName)
	if err != nil {
		return -1, err
	}
	return writeBinaryValue(b.BinaryType, b.FieldName, field, data, index)
}

func (b *BinaryDataItem) Read(object any, data []byte, index int) (int, error) {
	field, err := fieldOf(object, b.FieldName)
	if err != nil {
		return -1, err
	}
	return readBinaryValue(b.BinaryType, b.FieldName, field, data, index)
}

// BinaryCollectionItem represents the simple schema for array of structs.
type BinaryCollectionItem struct {
	FieldName  string       // Name of the golang struct slice.
	ItemSchema BinarySchema // Schema of the item in this collection
}

func (b *BinaryCollectionItem) Size(object any) (int, error) {
	collection, err := collectionOf(object, b.FieldName)
	if err != nil {
		return -1, err
	}

	size := 4
	for i := 0; i < collection.Len(); i++ {
		itemSize, err := b.ItemSchema.Size(collection.Index(i).Interface())
		if err != nil {
			return -1, err
		}
		size += itemSize
	}
	return size, nil
}

func (b *BinaryCollectionItem) Write(object any, data []byte, index int) (int, error) {
	collection, err := collectionOf(object, b.FieldName)
	if err != nil {
		return -1, err
	}

	binary.LittleEndian.PutUint32(data[index:], uint32(collection.Len()))
	index += 4

	for i := 0; i < collection.Len(); i++ {
		index, err = b.ItemSchema.Write(collection.Index(i).Interface(), data, index)
		if err != nil {
			return -1, err
		}
	}

	return index, nil
}

func (b *BinaryCollectionItem) Read(object any, data []byte, index int) (int, error) {
	collection, err := collectionOf(object, b.FieldName)
	if err != nil {
		return -1, err
	}

	length, index, err := readLength(b.FieldName, data, index)
	if err != nil {
		return -1, err
	}
	// Each item needs at least one byte, this prevents huge allocations for corrupt lengths.
	if length > len(data)-index {
		return -1, errors.Errorf("Data too short for %d elements of field %s", length, b.FieldName)
	}

	slice := reflect.MakeSlice(collection.Type(), length, length)
	collection.Set(slice)

	for i := 0; i < length; i++ {
		index, err = b.ItemSchema.Read(slice.Index(i).Addr().Interface(), data, index)
		if err != nil {
			return -1, err
		}
	}

	return index, nil
}

func fieldOf(object any, fieldName string) (reflect.Value, error) {
	value := reflect.Indirect(reflect.ValueOf(object))
	if value.Kind() != reflect.Struct {
		return reflect.Value{}, errors.Errorf("Unsupported object %v of kind %s, only structs are supported", object, value.Kind())
	}

	field := value.FieldByName(fieldName)
	if !field.IsValid() {
		return reflect.Value{}, errors.Errorf("Object of type %s has no field %s", value.Type(), fieldName)
	}
	return field, nil
}

func collectionOf(object any, fieldName string) (reflect.Value, error) {
	field, err := fieldOf(object, fieldName)
	if err != nil {
		return field, err
	}
	if field.Kind() != reflect.Slice {
		return field, errors.Errorf("Unsupported type %v of field %s. Only slices are supported.", field.Type(), fieldName)
	}
	return field, nil
}

func readLength(fieldName string, data []byte, index int) (int, int, error) {
	if len(data)-index < 4 {
		return -1, -1, errors.Errorf("Data too short for length of field %s at index %d", fieldName, index)
	}
	return int(binary.LittleEndian.Uint32(data[index:])), index + 4, nil
}

func writeBinaryValue(binaryType Datatype, fieldName string, value reflect.Value, data []byte, index int) (int, error) {
	if len(data)-index < binaryType.Width() {
		return -1, errors.Errorf("Buffer too small to write field %s at index %d", fieldName, index)
	}

	switch binaryType {
	case DatatypeByte:
		data[index] = byte(getUint64FromValue(value))
	case DatatypeInt32:
		binary.LittleEndian.PutUint32(data[index:], uint32(getUint64FromValue(value)))
	case DatatypeFloat32:
		binary.LittleEndian.PutUint32(data[index:], math.Float32bits(float32(value.Float())))
	case DatatypeFloat64:
		binary.LittleEndian.PutUint64(data[index:], math.Float64bits(value.Float()))
	default:
		return -1, errors.Errorf("Unsupported datatype %d for field %s", binaryType, fieldName)
	}
	return index + binaryType.Width(), nil
}

func readBinaryValue(binaryType Datatype, fieldName string, value reflect.Value, data []byte, index int) (int, error) {
	if binaryType.Width() == 0 {
		return -1, errors.Errorf("Unsupported datatype %d for field %s", binaryType, fieldName)
	}
	if len(data)-index < binaryType.Width() {
		return -1, errors.Errorf("Data too short to read field %s at index %d", fieldName, index)
	}

	d := data[index:]
	switch binaryType {
	case DatatypeByte:
		setUint64OnValue(value, uint64(d[0]))
	case DatatypeInt32:
		setUint64OnValue(value, uint64(int64(int32(binary.LittleEndian.Uint32(d)))))
	case DatatypeFloat32:
		value.SetFloat(float64(math.Float32frombits(binary.LittleEndian.Uint32(d))))
	case DatatypeFloat64:
		value.SetFloat(math.Float64frombits(binary.LittleEndian.Uint64(d)))
	}

	return index + binaryType.Width(), nil
}

func getUint64FromValue(value reflect.Value) uint64 {
	switch value.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return uint64(value.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return value.Uint()
	case reflect.Bool:
		if value.Bool() {
			return 1
		}
		return 0
	}
	panic("Unsupported value type " + value.Kind().String() + " to convert to uint.")
}

// setUint64OnValue is the counterpart of getUint64FromValue. Signed values are sign-extended by the caller.
func setUint64OnValue(value reflect.Value, v uint64) {
	switch value.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		value.SetInt(int64(v))
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		value.SetUint(v)
	case reflect.Bool:
		value.SetBool(v != 0)
	default:
		panic("Unsupported value type " + value.Kind().String() + " to convert from uint.")
	}
}
